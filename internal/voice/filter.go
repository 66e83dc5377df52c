package voice

import "strings"

// fillerTokens are transcription artifacts that carry no intent. The set
// is bilingual (Spanish + English); locale detection is out of scope.
var fillerTokens = map[string]bool{
	"eh": true, "ehh": true, "em": true, "mm": true, "mmm": true, "hmm": true,
	"uh": true, "uhm": true, "um": true, "ah": true, "ahh": true, "oh": true,
	"vale": true, "ya": true, "pues": true, "bueno": true, "este": true,
	"ok": true, "okay": true, "yeah": true, "so": true, "well": true,
}

// Nonsense reports whether a transcription should be discarded before it
// reaches the agent: too short, or made entirely of filler tokens.
func Nonsense(transcript string, minChars int) bool {
	t := strings.TrimSpace(transcript)
	if len(t) < minChars {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(t)) {
		tok = strings.Trim(tok, ".,;:!?¿¡")
		if tok == "" {
			continue
		}
		if !fillerTokens[tok] {
			return false
		}
	}
	return true
}
