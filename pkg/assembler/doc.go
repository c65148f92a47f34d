// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package assembler produces signed SIFEN documents and lots.

A single document is signed and returned with its serialized rDE, ready to
be embedded in rEnviDe/xDE:

	a := assembler.New(signer)
	signed, err := a.Document(doc)

A lot wraps up to 50 signed documents in rLoteDE, in input order:

	lot, err := a.Lot(id, docs)
	payload, err := compression.EncodeLot(lot.Text)

Lot assembly is all or nothing. When any document cannot be signed, no
document changes state. Serialized text is written without indentation and
is not rewritten after signing.

With WithQR every signed document also gets the gCamFuFD/dCarQR field
derived from its digest value and the taxpayer's CSC.
*/
package assembler
