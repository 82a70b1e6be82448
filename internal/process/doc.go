// Package process supervises one external command at a time.
//
// A Process starts its command in its own process group, logs stderr
// line by line through an optional level parser, and either logs stdout
// the same way or hands the raw stream to a consumer (the capture graph
// reads PCM audio from it). Stop sends SIGINT and escalates to SIGKILL on
// the whole group after a timeout.
//
//	p := process.NewProcess("graph-1", cmd, logger)
//	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
//	p.SetStdoutConsumer(func(r io.Reader) { ... })
//	p.OnExit(func(e process.Exit) { ... })
//	if err := p.Start(); err != nil { ... }
//	defer p.Stop()
package process
