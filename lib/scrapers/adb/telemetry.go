package adb

import (
	"adbprojects/lib/restyutil"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/adb")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables request/response transcripts for
// sessions created after the call.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
