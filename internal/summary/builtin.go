package summary

// builtin is the libc seed, equivalent to the shipped header summaries.
// tm field bounds follow the C standard: tm_sec allows the leap second,
// tm_year is intentionally unbounded.
var builtin = map[string]*Summary{
	"malloc": {
		ReturnsNullable: true,
		Allocates:       true,
		Preserves:       true,
	},
	"calloc": {
		ReturnsNullable: true,
		Allocates:       true,
		Preserves:       true,
	},
	"realloc": {
		ReturnsNullable: true,
		Allocates:       true,
		FreesArg:        1,
	},
	"free": {
		FreesArg:  1,
		Preserves: false,
	},
	"memcpy": {
		ReturnsNonNull: true,
		NonNullArgs:    []int{1, 2},
		Preserves:      true,
		NoOverlap:      &Overlap{DstArg: 1, SrcArg: 2, LenArg: 3},
	},
	"memmove": {
		ReturnsNonNull: true,
		NonNullArgs:    []int{1, 2},
		Preserves:      true,
	},
	"memset": {
		ReturnsNonNull: true,
		NonNullArgs:    []int{1},
		Preserves:      true,
	},
	"strcpy": {
		ReturnsNonNull: true,
		NonNullArgs:    []int{1, 2},
		Preserves:      true,
		NoOverlap:      &Overlap{DstArg: 1, SrcArg: 2},
	},
	"strlen": {
		NonNullArgs: []int{1},
		Preserves:   true,
	},
	"strcmp": {
		NonNullArgs: []int{1, 2},
		Preserves:   true,
	},
	"atoi": {
		NonNullArgs: []int{1},
		Preserves:   true,
	},
	"printf": {
		NonNullArgs: []int{1},
		Preserves:   true,
	},
	"time": {
		// accepts a NULL result pointer
		Preserves: true,
	},
	"gettimeofday": {
		NonNullArgs: []int{1},
		Preserves:   true,
	},
	"localtime": {
		ReturnsNullable: true,
		StaticStorage:   true,
		NonNullArgs:     []int{1},
		Preserves:       true,
		Fields: map[string]FieldRange{
			"tm_sec":   {Min: 0, Max: 60},
			"tm_min":   {Min: 0, Max: 59},
			"tm_hour":  {Min: 0, Max: 23},
			"tm_mday":  {Min: 1, Max: 31},
			"tm_mon":   {Min: 0, Max: 11},
			"tm_wday":  {Min: 0, Max: 6},
			"tm_yday":  {Min: 0, Max: 365},
			"tm_isdst": {Min: -1, Max: 1},
		},
	},
	"gmtime": {
		ReturnsNullable: true,
		StaticStorage:   true,
		NonNullArgs:     []int{1},
		Preserves:       true,
	},
}
