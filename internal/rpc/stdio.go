package rpc

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/lumencore/lumencore/internal/fabric"
	"github.com/lumencore/lumencore/pkg/logging"
)

// ServeStdio runs a single RPC session over r/w using newline-delimited
// JSON, the adapter's other advertised surface alongside websockets
// (spec.md §6 "used by GUIs and stdio adapters"). It blocks until r is
// exhausted or returns an error, then tears the session down.
func ServeStdio(fab *fabric.Fabric, r io.Reader, w io.Writer) error {
	var writeMu sync.Mutex
	enc := json.NewEncoder(w)
	sess := NewSession(fab, func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return enc.Encode(v)
	})
	defer sess.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := sess.HandleMessage(append([]byte(nil), line...)); err != nil {
			logging.Error("rpc: handling stdio message: %v", err)
		}
	}
	return scanner.Err()
}
