package constants

// Bounds for phone numbers in E.164 form: country code plus subscriber
// number, after the leading plus is stripped. Anything outside this
// range is not a dialable number.
const (
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 15
)

// Caps for provider-assigned identifiers. Meta message IDs (wamid.*)
// run well under these, so hitting a cap means corrupt or hostile input.
const (
	MaxMessageIDLength = 256
	MaxNumberIDLength  = 64
)
