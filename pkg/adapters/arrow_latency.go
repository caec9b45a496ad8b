package adapters

import (
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/tripflow/tripflow/pkg/errors"
)

// latencySchema is the columnar layout for per-event latency samples.
var latencySchema = arrow.NewSchema([]arrow.Field{
	{Name: "seq", Type: arrow.PrimitiveTypes.Int64},
	{Name: "delay_ms", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteLatencyArrow exports latency samples to an Arrow IPC stream file,
// for columnar analysis tooling. One record batch; sample counts per run
// are bounded by the input size.
func WriteLatencyArrow(path string, delaysMs []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to create arrow file").
			WithContext("path", path)
	}
	defer f.Close()

	alloc := memory.DefaultAllocator
	builder := array.NewRecordBuilder(alloc, latencySchema)
	defer builder.Release()

	seqBuilder := builder.Field(0).(*array.Int64Builder)
	delayBuilder := builder.Field(1).(*array.Float64Builder)
	for i, v := range delaysMs {
		seqBuilder.Append(int64(i))
		delayBuilder.Append(v)
	}

	rec := builder.NewRecord()
	defer rec.Release()

	w := ipc.NewWriter(f, ipc.WithSchema(latencySchema), ipc.WithAllocator(alloc))
	if err := w.Write(rec); err != nil {
		w.Close()
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write arrow batch").
			WithContext("path", path)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to close arrow writer").
			WithContext("path", path)
	}
	return nil
}
