package constants

// Status identifies a machine readable processing event. Clients
// receive them through a status callback together with an argument
// string whose layout depends on the status.
type Status int8

const (
	// StatusGoodSig reports a valid signature. Args: "<keyid> <userid>".
	StatusGoodSig Status = iota + 1
	// StatusBadSig reports a signature that did not verify. Args as StatusGoodSig.
	StatusBadSig
	// StatusErrSig reports a signature that could not be checked.
	// Args: "<keyid> <pubkeyalgo> <hashalgo> <sigclass> <timestamp> <rc>".
	StatusErrSig
	// StatusBadArmor reports malformed ASCII armor.
	StatusBadArmor
	// StatusNoData reports that no valid OpenPGP data was found.
	// Args: "1" for missing armor, "3" for an invalid packet.
	StatusNoData
)

var statusNames = map[Status]string{
	StatusGoodSig:  "GOODSIG",
	StatusBadSig:   "BADSIG",
	StatusErrSig:   "ERRSIG",
	StatusBadArmor: "BADARMOR",
	StatusNoData:   "NODATA",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
