// Command demo runs a complete local competition for testing and development.
//
// The demo starts a participant registry and a coordinator in a single
// process, registers participants that each submit a sealed model, waits for
// the submission window to close, then acts as the evaluation program: it
// attests, fetches the evaluation secrets, opens every submission and
// announces the highest score as the winner.
//
// # Usage
//
//	go run ./services/demo [flags]
//
// # Flags
//
//	--participants      Number of participants (default: 5)
//	--port              Base port; the coordinator uses port+1 (default: 8000)
//	--window            Time until submissions close (default: 10s)
//	--tdx               Use real TDX attestation
//	--tdx-url           Remote TDX attestation service URL
//	--measurements-url  URL for allowed measurements (uses demo static if empty)
package main
