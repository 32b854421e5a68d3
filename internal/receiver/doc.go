// Package receiver implements the scanner link.
//
// The Manager:
//   - Keeps one TCP connection to the scanner app (default port 8765)
//   - Retries dialing forever, RetryDelay apart
//   - Reconnects immediately when a read fails, returns EOF or is shorter than the header
//   - Treats every read as one frame: 2-byte length header + UTF-8 text
//   - Reports Disconnected/Connecting/Connected and decoded text through callbacks
//   - Stops within two grace periods, interrupting a blocked read if it has to
//
// Frames split across reads are not reassembled. FrameInfo.Truncated flags
// reads that delivered fewer bytes than the header announced.
package receiver
