// Package process runs a language server as a child process and exposes its
// standard streams as a byte-stream resource.
//
// Output is not consumed by the caller through a blocking reader. A single
// goroutine drains stdout into an internal buffer and signals readiness;
// the owner drains whatever has arrived with ReadAvailable when Ready fires.
// Done is closed only after stdout has been fully drained, so bytes written
// just before an exit are never lost.
//
//	p, err := process.Start(ctx, process.Config{Command: "rust-analyzer"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	p.Write(frame)
//	select {
//	case <-p.Ready():
//	    chunk := p.ReadAvailable()
//	case <-p.Done():
//	    // exited
//	}
package process
