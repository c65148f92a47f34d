// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gosifen is a client for SIFEN, the electronic invoicing system of
Paraguay's tax authority (SET).

It builds electronic tax documents (DE), signs them with XML-DSig, groups
them into lots, and exchanges SOAP envelopes with the authority's web
services over mutually authenticated HTTPS.

# Specifications Implemented

  - SIFEN technical manual, format version 150 (DE and rLoteDE schemas)
  - SOAP 1.1 and SOAP 1.2 envelopes as served by the SIFEN gateways
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/
  - Exclusive XML Canonicalization: https://www.w3.org/TR/xml-exc-c14n/

# Package Structure

	github.com/sirosfoundation/go-sifen/pkg/sifen       - Client operations and request lifecycle
	github.com/sirosfoundation/go-sifen/pkg/document    - DE fields, CDC identifier, XML tree
	github.com/sirosfoundation/go-sifen/pkg/security    - Enveloped signatures and certificate checks
	github.com/sirosfoundation/go-sifen/pkg/assembler   - Signed documents, lots and the QR field
	github.com/sirosfoundation/go-sifen/pkg/compression - Zip and base64 lot encoding
	github.com/sirosfoundation/go-sifen/pkg/message     - SOAP envelopes and response decoding
	github.com/sirosfoundation/go-sifen/pkg/transport   - Endpoint routing and HTTPS exchange

# Quick Start

To submit a lot:

	import (
	    "github.com/sirosfoundation/go-sifen/pkg/document"
	    "github.com/sirosfoundation/go-sifen/pkg/security"
	    "github.com/sirosfoundation/go-sifen/pkg/sifen"
	)

	signer, _ := security.NewSigner(security.Credential{Key: key, Certificate: cert})
	client, _ := sifen.NewClient(sifen.Config{
	    BaseURL: sifen.BaseURLTest,
	    Signer:  signer,
	})

	doc, _ := document.New(fields)
	res, err := client.SubmitLot(ctx, []*document.Document{doc})
	// res.Protocol is used later with client.QueryLot

# Outcomes

Every operation ends in one of three states. Completed means the authority
answered with a result code. Rejected means the envelope was understood but
carried no result code; the submission is indeterminate and must be checked
with a query before it is repeated. Failed means the request was never built,
never delivered or its answer could not be decoded; a *sifen.RequestError
reports the stage and keeps the raw bytes.

# License

BSD-2-Clause License
*/
package gosifen
