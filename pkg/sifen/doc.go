// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package sifen is the client for the SIFEN electronic invoicing services of
Paraguay's tax authority.

# Operations

	client, err := sifen.NewClient(sifen.Config{
	    BaseURL:   sifen.BaseURLTest,
	    Transport: &transport.Config{TLS: tlsConfig},
	    Signer:    signer,
	})

	ruc, err := client.LookupRUC(ctx, "80089752")
	doc, err := client.SubmitDocument(ctx, d)
	lot, err := client.SubmitLot(ctx, docs)
	status, err := client.QueryLot(ctx, lot.Protocol)
	info, err := client.QueryDocument(ctx, cdc)

# Lifecycle

Every call moves through Building, Signing (document operations), Encoding
(lots), Transmitting and ParsingResponse, and ends in one of:

  - Completed: the authority's result code was found. Business rejections
    such as a malformed document code are Completed outcomes.
  - Rejected: a response arrived without a result code, for example an HTTP
    500 carrying a SOAP Fault. The outcome is indeterminate.
  - Failed: the call returns a *RequestError naming the stage, with the
    request and response bytes available at that point. errors.Is reaches
    the sentinel of the failing package.

Outcomes always carry the literal request and response bytes. There are no
retries; callers decide.

# Events

An Observer receives request-built, request-sent, response-received,
parse-result and request-failed events with a per-call request id.
LogObserver writes them to slog; internal/metrics exports them to
Prometheus.
*/
package sifen
