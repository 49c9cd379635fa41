// Package builtins carries the table of Perl built-in functions used by
// hover, completion and signature help. The table is fixed at startup and
// read-only, so it is shared process-wide without locking.
package builtins

import "strings"

// Function describes one built-in.
type Function struct {
	Name      string
	Signature string // display form, e.g. "push ARRAY, LIST"
	Params    []string
	Doc       string
	Snippet   string // completion insert text; empty means plain name
}

// table is keyed by function name.
var table = map[string]Function{}

func def(name, signature, doc string) {
	fn := Function{Name: name, Signature: signature, Doc: doc}
	if i := strings.IndexByte(signature, ' '); i > 0 {
		for _, p := range strings.Split(signature[i+1:], ",") {
			fn.Params = append(fn.Params, strings.TrimSpace(p))
		}
	}
	table[name] = fn
}

func init() {
	def("print", "print FILEHANDLE LIST", "Prints a string or list of strings to a filehandle, STDOUT by default.")
	def("printf", "printf FILEHANDLE FORMAT, LIST", "Equivalent to print FILEHANDLE sprintf(FORMAT, LIST).")
	def("say", "say FILEHANDLE LIST", "Like print, but appends a newline.")
	def("sprintf", "sprintf FORMAT, LIST", "Returns a string formatted by the usual printf conventions.")
	def("push", "push ARRAY, LIST", "Appends one or more elements to the end of an array; returns the new length.")
	def("pop", "pop ARRAY", "Removes and returns the last element of an array.")
	def("shift", "shift ARRAY", "Removes and returns the first element of an array. Inside a sub, defaults to @_.")
	def("unshift", "unshift ARRAY, LIST", "Prepends elements to the front of an array; returns the new length.")
	def("splice", "splice ARRAY, OFFSET, LENGTH, LIST", "Removes and optionally replaces elements of an array.")
	def("reverse", "reverse LIST", "Returns the list in reverse order; in scalar context, the concatenated reverse string.")
	def("sort", "sort BLOCK LIST", "Sorts a list, optionally with a comparison block or sub.")
	def("grep", "grep BLOCK LIST", "Returns the elements for which the block evaluates true.")
	def("map", "map BLOCK LIST", "Evaluates the block for each element and returns the collected results.")
	def("join", "join EXPR, LIST", "Joins the list elements into a single string with the given separator.")
	def("split", "split /PATTERN/, EXPR, LIMIT", "Splits a string into a list of strings by the pattern.")
	def("keys", "keys HASH", "Returns a list of the hash's keys (or an array's indices).")
	def("values", "values HASH", "Returns a list of the hash's values.")
	def("each", "each HASH", "Iterates the hash one key/value pair per call.")
	def("exists", "exists EXPR", "True if the hash key or array index exists.")
	def("delete", "delete EXPR", "Deletes a hash key (or array element) and returns its value.")
	def("defined", "defined EXPR", "True if the value is not undef.")
	def("undef", "undef EXPR", "Undefines a variable; with no argument, returns the undefined value.")
	def("wantarray", "wantarray", "True if the enclosing sub was called in list context.")
	def("ref", "ref EXPR", "Returns the reference type of its argument, or the empty string.")
	def("bless", "bless REF, CLASSNAME", "Marks a referent as an object of the given class.")
	def("die", "die LIST", "Raises an exception with the given message.")
	def("warn", "warn LIST", "Prints a warning to STDERR.")
	def("eval", "eval BLOCK", "Traps exceptions raised inside the block; $@ holds the error afterwards.")
	def("exit", "exit EXPR", "Exits the program with the given status.")
	def("return", "return LIST", "Returns from a subroutine with the given value.")
	def("length", "length EXPR", "Length of the string value in characters.")
	def("substr", "substr EXPR, OFFSET, LENGTH, REPLACEMENT", "Extracts or replaces a substring.")
	def("index", "index STR, SUBSTR, POSITION", "Position of the first occurrence of SUBSTR, or -1.")
	def("rindex", "rindex STR, SUBSTR, POSITION", "Like index, searching from the end.")
	def("uc", "uc EXPR", "Uppercased version of the string.")
	def("lc", "lc EXPR", "Lowercased version of the string.")
	def("ucfirst", "ucfirst EXPR", "String with the first character uppercased.")
	def("lcfirst", "lcfirst EXPR", "String with the first character lowercased.")
	def("chomp", "chomp VARIABLE", "Removes a trailing input record separator; returns characters removed.")
	def("chop", "chop VARIABLE", "Removes the last character of a string.")
	def("chr", "chr NUMBER", "Character for the given code point.")
	def("ord", "ord EXPR", "Code point of the first character.")
	def("abs", "abs VALUE", "Absolute value.")
	def("int", "int EXPR", "Integer portion of the value.")
	def("sqrt", "sqrt EXPR", "Square root.")
	def("rand", "rand EXPR", "Random fractional number between 0 and EXPR (default 1).")
	def("srand", "srand EXPR", "Seeds the random number generator.")
	def("hex", "hex EXPR", "Interprets the string as hexadecimal and returns the value.")
	def("oct", "oct EXPR", "Interprets the string as octal (or hex/binary with prefix).")
	def("open", "open FILEHANDLE, MODE, EXPR", "Opens a file, returning true on success.")
	def("close", "close FILEHANDLE", "Closes a filehandle.")
	def("read", "read FILEHANDLE, SCALAR, LENGTH, OFFSET", "Reads LENGTH bytes into SCALAR.")
	def("readline", "readline EXPR", "Reads a line from the filehandle; <FH> is shorthand.")
	def("binmode", "binmode FILEHANDLE, LAYER", "Sets a filehandle's I/O layers.")
	def("eof", "eof FILEHANDLE", "True at end of file.")
	def("unlink", "unlink LIST", "Deletes files; returns the number deleted.")
	def("mkdir", "mkdir FILENAME, MODE", "Creates a directory.")
	def("rmdir", "rmdir FILENAME", "Removes a directory.")
	def("opendir", "opendir DIRHANDLE, EXPR", "Opens a directory for reading.")
	def("readdir", "readdir DIRHANDLE", "Returns the next directory entry (or all, in list context).")
	def("closedir", "closedir DIRHANDLE", "Closes a directory handle.")
	def("stat", "stat FILEHANDLE", "Returns the 13-element status list for a file.")
	def("chdir", "chdir EXPR", "Changes the working directory.")
	def("system", "system LIST", "Runs an external command and waits for it.")
	def("exec", "exec LIST", "Replaces the current program with an external command.")
	def("sleep", "sleep EXPR", "Sleeps for the given number of seconds.")
	def("time", "time", "Seconds since the epoch.")
	def("localtime", "localtime EXPR", "Converts an epoch time to local broken-down time.")
	def("gmtime", "gmtime EXPR", "Converts an epoch time to UTC broken-down time.")
	def("caller", "caller EXPR", "Returns context about the current call stack frame.")
	def("local", "local LIST", "Dynamically scopes global variables to the enclosing block.")
	def("scalar", "scalar EXPR", "Forces scalar context on an expression.")
	def("pos", "pos SCALAR", "Offset where the last m//g search left off.")
	def("quotemeta", "quotemeta EXPR", "Returns the value with regex metacharacters escaped.")
	def("lock", "lock THING", "Places an advisory lock on a shared variable.")
	def("tie", "tie VARIABLE, CLASSNAME, LIST", "Binds a variable to an implementation class.")
	def("untie", "untie VARIABLE", "Breaks a tie binding.")
}

// Lookup returns the builtin with the given name.
func Lookup(name string) (Function, bool) {
	fn, ok := table[name]
	return fn, ok
}

// IsBuiltin reports whether name is a known built-in function.
func IsBuiltin(name string) bool {
	_, ok := table[name]
	return ok
}

// Names returns every builtin name, unsorted.
func Names() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	return out
}

// Matching returns builtins whose name starts with the prefix.
func Matching(prefix string) []Function {
	var out []Function
	for name, fn := range table {
		if strings.HasPrefix(name, prefix) {
			out = append(out, fn)
		}
	}
	return out
}
