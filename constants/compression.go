package constants

// Compression algorithm identifiers.
const (
	// No compression.
	CompressionNone uint8 = 0
	// ZIP, raw DEFLATE streams.
	CompressionZIP uint8 = 1
	// ZLIB, DEFLATE with a zlib header.
	CompressionZLIB uint8 = 2
	// BZIP2.
	CompressionBZIP2 uint8 = 3
)
