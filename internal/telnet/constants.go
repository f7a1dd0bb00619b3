package telnet

// Command bytes (RFC 854). On the wire every command is preceded by IAC;
// a literal 0xFF data byte is escaped as IAC IAC.
const (
	SE   byte = 240 // end of subnegotiation
	NOP  byte = 241 // no operation (keepalive)
	GA   byte = 249 // go ahead
	SB   byte = 250 // begin subnegotiation
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255 // interpret as command
)

// Option codes negotiated by this server.
const (
	OptEcho            byte = 1  // RFC 857
	OptSuppressGoAhead byte = 3  // RFC 858
	OptTerminalType    byte = 24 // RFC 1091
	OptNAWS            byte = 31 // RFC 1073
	OptCompress2       byte = 86 // MCCP2 (zlib stream)
)

// Terminal-type subnegotiation verbs (RFC 1091).
// Request: IAC SB TTYPE SEND IAC SE. Reply: IAC SB TTYPE IS <name> IAC SE.
const (
	ttypeIS   byte = 0
	ttypeSEND byte = 1
)

// NAWS subnegotiation payload: width and height as big-endian uint16
// (RFC 1073), 4 bytes after IAC unescaping.
const nawsPayloadSize = 4
