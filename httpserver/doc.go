/*
Package httpserver implements the HTTP front-end of the confidential chat
gateway.

It exposes the chat relay, the EVM chain operations, and the key-management
endpoints over a chi router, alongside health and diagnostics routes used by
load balancers, and serves the embedded static chat page.

# API surface

  - POST /chat, POST /reset_chat - chat relay
  - GET|POST /api/evm/connect, GET /api/evm/status - EVM connection
  - GET /api/evm/balance - native or ERC20 token balance
  - POST /api/evm/send, GET /api/evm/tx - value transfers
  - GET|POST /api/key/list, /api/key/load, GET /api/key/address - key slot
  - GET /livez, /readyz, /drain, /undrain - health and rollout control

Every error is rendered as a JSON body of the form {"error": "..."} with a
status code derived from the shared sentinel errors: invalid input maps to
400, missing objects and the unloaded key slot to 404, KMS rejections to
403, and completion upstream failures to 502.

The server runs an optional Prometheus metrics listener on a separate
address and supports graceful drain before shutdown.
*/
package httpserver
