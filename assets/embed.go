package assets

import _ "embed"

// ContentJSON holds the static mood, reminder and encouragement tables.
//
//go:embed content.json
var ContentJSON []byte
