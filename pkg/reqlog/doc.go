// Package reqlog records the SysEx traffic of a device session.
//
// Events are written as a stream of CBOR items with integer keys, so a log
// file can be appended to across runs and read back with Reader:
//
//	l, _ := reqlog.NewFileLogger("opendeck.rlog")
//	defer l.Close()
//	client := device.New(driver, device.WithRequestLog(l))
//
// Memory keeps the most recent events in a ring for interactive front-ends.
package reqlog
