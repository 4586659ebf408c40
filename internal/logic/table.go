package logic

import "unicode"

// morseTable maps standard International Morse patterns to letters and digits.
var morseTable = map[string]rune{
	".-": 'A', "-...": 'B', "-.-.": 'C', "-..": 'D', ".": 'E',
	"..-.": 'F', "--.": 'G', "....": 'H', "..": 'I', ".---": 'J',
	"-.-": 'K', ".-..": 'L', "--": 'M', "-.": 'N', "---": 'O',
	".--.": 'P', "--.-": 'Q', ".-.": 'R', "...": 'S', "-": 'T',
	"..-": 'U', "...-": 'V', ".--": 'W', "-..-": 'X', "-.--": 'Y',
	"--..": 'Z',
	"-----": '0', ".----": '1', "..---": '2', "...--": '3', "....-": '4',
	".....": '5', "-....": '6', "--...": '7', "---..": '8', "----.": '9',
}

var reverseTable = func() map[rune]string {
	m := make(map[rune]string, len(morseTable))
	for seq, r := range morseTable {
		m[r] = seq
	}
	return m
}()

// Lookup returns the character for a Morse pattern such as "...".
// Patterns with no entry return false; that is the "unknown" case, not an error.
func Lookup(seq string) (rune, bool) {
	r, ok := morseTable[seq]
	return r, ok
}

// Encode returns the Morse pattern for a letter or digit, case-insensitively.
func Encode(r rune) (string, bool) {
	seq, ok := reverseTable[unicode.ToUpper(r)]
	return seq, ok
}
