package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"dinechain/core/types"
)

func TestSendTransactionRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	f := newFixture(t, ServerConfig{})
	restaurant := newAccount(t)
	receipt, err := f.send(t, restaurant, types.TxTypeRegisterRestaurant, [20]byte{}, 0, "ChIJ-span")
	require.NoError(t, err)
	_, err = f.send(t, restaurant, types.TxTypeRegisterRestaurant, [20]byte{}, 0, "ChIJ-span")
	require.Equal(t, codeAlreadyRegistered, ErrorCode(err))

	var spans []sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "dine_sendTransaction" {
			spans = append(spans, span)
		}
	}
	require.Len(t, spans, 2)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "register_restaurant", attrs["tx.type"])
	require.Equal(t, receipt.TransactionHash, attrs["tx.hash"])
	require.Equal(t, codes.Unset, spans[0].Status().Code)

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Contains(t, spans[1].Status().Description, "already registered")
}
