// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport performs SOAP exchanges with the SIFEN web services.

# Routing

Each target URL maps to a Route through an ordered table. The first row whose
substring occurs in the URL wins; the environment comes from the host:

	consulta-ruc, test host   SOAP 1.1  application/xml; charset=utf-8             no SOAPAction, keep-alive
	consulta-ruc              SOAP 1.2  application/soap+xml; ...; action="siConsRUC"    SOAPAction: siConsRUC
	/async/recibe-lote        SOAP 1.2  application/soap+xml; ...; action="siRecepLoteDE" no SOAPAction
	consulta-lote             SOAP 1.2  application/soap+xml; ...; action="siConsLoteDE"  SOAPAction empty, Connection: close
	anything else             SOAP 1.2  application/soap+xml; charset=utf-8             no SOAPAction

Resolve and Lookup are pure and can be tested without a network.

# Exchanges

A Client sends one POST per call with a fixed Content-Length. It never
retries. Each exchange uses its own http.Transport, closed on return, and
shares only the read-only tls.Config:

	client := transport.NewClient(&transport.Config{
	    TLS:            (&transport.TLSOptions{Certificates: certs}).Config(),
	    ConnectTimeout: 10 * time.Second,
	    ReadTimeout:    30 * time.Second,
	}, logger)

	req, err := client.Prepare(url, message.NewRUCQuery(id, "80089752"))
	res, err := client.Do(ctx, req)

Responses with status 400 or above are returned as results, not errors, so
the fault document can be decoded.

# TLS

TLS 1.2 and 1.3 are accepted. For TLS 1.2 the ECDHE AES-GCM suites in
RecommendedTLS12CipherSuites are offered.
*/
package transport
