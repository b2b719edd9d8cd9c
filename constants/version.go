package constants

// Version of this library.
const Version = "1.0.0"
