package password

// Top entries from public breach corpora, lowercased. Deliberately small:
// this is a fast in-process reject list, not a breach database.
var commonPasswords = map[string]struct{}{
	"123456":           {},
	"123456789":        {},
	"12345678":         {},
	"1234567890":       {},
	"password":         {},
	"password1":        {},
	"password123":      {},
	"passw0rd":         {},
	"p@ssw0rd":         {},
	"qwerty":           {},
	"qwerty123":        {},
	"qwertyuiop":       {},
	"abc123":           {},
	"111111":           {},
	"123123":           {},
	"000000":           {},
	"iloveyou":         {},
	"dragon":           {},
	"monkey":           {},
	"letmein":          {},
	"letmein123":       {},
	"welcome":          {},
	"welcome1":         {},
	"welcome123":       {},
	"admin":            {},
	"admin123":         {},
	"administrator":    {},
	"root":             {},
	"toor":             {},
	"login":            {},
	"master":           {},
	"sunshine":         {},
	"princess":         {},
	"football":         {},
	"baseball":         {},
	"superman":         {},
	"batman":           {},
	"trustno1":         {},
	"shadow":           {},
	"michael":          {},
	"jennifer":         {},
	"charlie":          {},
	"donald":           {},
	"freedom":          {},
	"whatever":         {},
	"secret":           {},
	"summer2024":       {},
	"changeme":         {},
	"changeme123":      {},
	"default":          {},
	"guest":            {},
	"test":             {},
	"test123":          {},
	"temp123":          {},
	"1q2w3e4r":         {},
	"1qaz2wsx":         {},
	"zaq12wsx":         {},
	"asdfghjkl":        {},
	"zxcvbnm":          {},
	"correcthorse":     {},
	"starwars":         {},
	"pokemon":          {},
	"computer":         {},
	"internet":         {},
}
