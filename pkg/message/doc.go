// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message builds SIFEN SOAP requests and decodes SIFEN responses.

# Requests

Request bodies are plain structs marshalled with encoding/xml and wrapped in
an envelope of the dialect chosen by the transport route:

	body := message.NewRUCQuery(dID, "80089752")
	payload, err := message.Build(message.SOAP12, body)

The signed rDE of a single document reception is embedded through RawXML so
its bytes reach the wire exactly as they were signed.

# Responses

The gateway does not always answer in the dialect it was asked in, so Decode
sniffs the envelope namespace and then tries the dialects in a fixed order:

	| raw text contains      | tried in order  |
	|------------------------|-----------------|
	| SOAP 1.2 namespace     | 1.2, 1.1        |
	| SOAP 1.1 namespace     | 1.1, 1.2        |
	| neither                | 1.2, 1.1        |

ErrUnparseableEnvelope is returned only when every tried dialect fails.
Result looks up the expected result node among the Body children; a missing
node yields nil, which callers treat as an indeterminate outcome.

	env, err := message.Decode(raw)
	var res message.RUCResult
	found, err := env.ResultInto(message.ResultRUC, &res)

# References

  - SOAP 1.1: https://www.w3.org/TR/2000/NOTE-SOAP-20000508/
  - SOAP 1.2: https://www.w3.org/TR/soap12-part1/
*/
package message
