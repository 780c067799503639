// Package port wraps operating system descriptors as runtime I/O ports.
//
// The Factory turns the standard descriptors into the current input, output
// and error ports (warning aliases error):
//
//	f := port.NewFactory()
//	std := f.Standard()
//	std.Output.WriteString("hello\n")
//	f.Table().FlushAll()
//
// Each standard port is unbuffered when its descriptor is a terminal and
// buffered otherwise. Wrapping never fails: a closed or invalid descriptor
// yields a void port, which discards writes and reports end of input, so a
// process started with broken stdio can still boot. Open exposes the
// underlying Result for callers that want to see the fault.
//
// Ports over descriptors the runtime did not open are revealed: Close and
// Table.Reclaim flush them but never close the descriptor.
package port
