package cloudstorage

// GeneralData is the account-level summary a provider can report about
// the authorized user: spec.md's generalData verb, ported from the
// promise example's GeneralData{username_, space_used_, space_total_}.
type GeneralData struct {
	Username string
	// SpaceUsed and SpaceTotal are bytes; SpaceTotal is 0 when the
	// provider does not report a quota (e.g. an unlimited plan).
	SpaceUsed  int64
	SpaceTotal int64
}
