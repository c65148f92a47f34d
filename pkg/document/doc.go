// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package document implements the electronic document (DE) model for SIFEN.

A Document holds the fields of one electronic invoice-like record and its
44-digit identifier, the CDC. The CDC is derived from a fixed set of fields
plus a modulo 11 check digit:

	iTiDE(2) dRucEm(8) dDVEmi(1) dEst(3) dPunExp(3) dNumDoc(7)
	iTipCont(1) dFeEmiDE(8, yyyymmdd) iTipEmi(1) dCodSeg(9) DV(1)

# Building

	doc, err := document.New(document.Fields{
	    Type:          document.TypeInvoice,
	    IssuerRUC:     "80089752",
	    IssuerDV:      8,
	    Establishment: 1,
	    PointOfSale:   1,
	    Number:        1,
	    ...
	})
	cdc := doc.ID()

# Parsing

Documents produced elsewhere can be parsed with [Parse]. The identifier is
extracted and re-validated, namespace prefixes for the SIFEN namespace are
normalized, and a document that already carries a Signature is reported as
[Signed]. Signed documents cannot be signed again.

# Signing state

A Document starts [Unsigned] and becomes [Signed] exactly once through
[Document.Seal], which the security package calls after producing the
signature. A sealed document is immutable.

# References

  - SIFEN Manual Técnico v150: https://www.dnit.gov.py/web/e-kuatia/documentacion
*/
package document
