// Package core provides the types every other dbaccess package reports
// through or exchanges.
//
// # Results
//
// A Result is as small as an integer while there is no error. When an
// error or warning is set, its text is stored in the process-wide
// Registry and the Result only keeps the id:
//
//	func open() core.Result {
//	    var result core.Result
//	    result.SetError("File sharing violation")
//	    return result
//	}
//
//	result := open()
//	if !result.IsOk() {
//	    result.InsertContext("Unable to process results")
//	    fmt.Println(result.Message())
//	}
//
// prints:
//
//	Unable to process results
//	File sharing violation
//
// Reading a message removes it. Messages that are never read are reported
// by ReportUnhandled, which binaries call on shutdown.
//
// # Values
//
// Bound parameters and extracted columns share one canonical string form:
//
//	core.IntValue(42)        // "42", IntKind
//	core.DoubleValue(1.5)    // "1.5", FloatKind
//	core.TextValue("Fred")   // "Fred", TextKind
//	core.NullValue()         // "", NullKind
//
// A Codec turns engine-native values into that form. Its NullPolicy names
// whether NULL stays a distinct value or becomes an empty string.
package core
