// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression encodes SIFEN lots for transmission.

A lot travels as the text content of rEnvioLote/xDE. The canonical lot text
is encoded as UTF-8, stored as the single deflated entry of a zip container
and the container is base64 encoded:

	payload, err := compression.EncodeLot(lotText)

Decoding reverses the steps and reproduces the text byte for byte:

	text, err := compression.DecodeLot(payload)

Failures while writing or reading the container are reported as
ErrCompression, invalid UTF-8 or base64 as ErrEncoding. Neither is retried.
*/
package compression
