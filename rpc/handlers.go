package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dinechain/core/types"
	"dinechain/native/discount"
	"dinechain/observability"
	dineotel "dinechain/observability/otel"
)

const tracerName = "dinechain/rpc"

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func stringParam(params []json.RawMessage, idx int, name string) (string, *RPCError) {
	if len(params) <= idx {
		return "", invalidParams("%s required", name)
	}
	var value string
	if err := json.Unmarshal(params[idx], &value); err != nil {
		return "", invalidParams("%s must be a string", name)
	}
	return value, nil
}

func addressParam(params []json.RawMessage, idx int, name string) ([20]byte, *RPCError) {
	raw, rpcErr := stringParam(params, idx, name)
	if rpcErr != nil {
		return [20]byte{}, rpcErr
	}
	addr, err := parseAddress(raw)
	if err != nil {
		return [20]byte{}, invalidParams("%s: %v", name, err)
	}
	return addr, nil
}

func (s *Server) handleSendTransaction(r *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	if len(params) != 1 {
		return nil, invalidParams("expected a single transaction object")
	}
	var wire TransactionParams
	if err := json.Unmarshal(params[0], &wire); err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	tx, err := wire.Transaction()
	if err != nil {
		return nil, invalidParams("invalid transaction: %v", err)
	}
	_, span := dineotel.Tracer(tracerName).Start(r.Context(), "dine_sendTransaction",
		trace.WithAttributes(
			attribute.String("tx.type", tx.Type.String()),
			attribute.Int64("tx.nonce", int64(tx.Nonce)),
		))
	defer span.End()

	receipt, err := s.node.SubmitTransaction(tx)
	observability.Ledger().RecordTransaction(tx.Type.String(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ledgerError(err)
	}
	span.SetAttributes(attribute.String("tx.hash", fmt.Sprintf("0x%x", receipt.TxHash)))
	return receiptResult(receipt), nil
}

func (s *Server) handleGetRestaurant(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.Restaurant(addr)
	if err != nil {
		return nil, ledgerError(err)
	}
	return restaurantResult(addr, record), nil
}

func (s *Server) handleGetRestaurantByPlaceID(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	placeID, rpcErr := stringParam(params, 0, "placeId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.node.RestaurantByPlaceID(placeID)
	if err != nil {
		return nil, ledgerError(err)
	}
	return restaurantResult(record.Address, record), nil
}

func (s *Server) handleCalculateCustomRatio(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "restaurant")
	if rpcErr != nil {
		return nil, rpcErr
	}
	ratio, err := s.node.CalculateCustomRatio(addr)
	if err != nil {
		return nil, ledgerError(err)
	}
	return ratio.String(), nil
}

func (s *Server) handleRestaurantsByRatio(_ *http.Request, _ []json.RawMessage) (interface{}, *RPCError) {
	ranked, err := s.node.RestaurantsByRatio()
	if err != nil {
		return nil, ledgerError(err)
	}
	out := make([]RatioResult, 0, len(ranked))
	for _, entry := range ranked {
		out = append(out, RatioResult{
			Address: formatAddress(entry.Address[:]),
			PlaceID: entry.PlaceID,
			Ratio:   entry.Ratio.String(),
			Display: entry.String(),
		})
	}
	return out, nil
}

func (s *Server) handlePreviewPayment(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "restaurant")
	if rpcErr != nil {
		return nil, rpcErr
	}
	rawAmount, rpcErr := stringParam(params, 1, "amount")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, invalidParams("amount: %v", err)
	}
	quote, err := s.node.PreviewPayment(addr, amount)
	if err != nil {
		return nil, ledgerError(err)
	}
	return QuoteResult{
		Restaurant:      formatAddress(addr[:]),
		RequestedAmount: amount.String(),
		RecentVolume:    quote.RecentVolume.String(),
		CustomRatio:     quote.CustomRatio.String(),
		AdjustedAmount:  quote.AdjustedAmount.String(),
	}, nil
}

func (s *Server) handleGetParams(_ *http.Request, _ []json.RawMessage) (interface{}, *RPCError) {
	cfg := s.node.LedgerConfig()
	meta, err := s.node.TokenMetadata()
	if err != nil {
		return nil, ledgerError(err)
	}
	return ParamsResult{
		ChainID:     s.node.ChainID(),
		Owner:       formatAddress(cfg.Admin[:]),
		Spender:     formatAddress(discount.ModuleAddress[:]),
		Token:       meta.Symbol,
		Decimals:    meta.Decimals,
		BaseRatio:   cfg.Params.BaseRatio.String(),
		DecayFactor: cfg.Params.DecayFactor.String(),
		MinRatio:    cfg.Params.MinRatio.String(),
		TimeWindow:  cfg.Params.TimeWindow,
	}, nil
}

func (s *Server) handleGetReceipt(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := stringParam(params, 0, "hash")
	if rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := types.ParseHash(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	receipt, err := s.node.Receipt(hash[:])
	if err != nil {
		return nil, ledgerError(err)
	}
	return receiptResult(receipt), nil
}

func (s *Server) handleGetNonce(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		return nil, ledgerError(err)
	}
	return nonce, nil
}

func (s *Server) handleListPayments(r *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	if s.index == nil {
		return nil, &RPCError{Code: codeServerError, Message: "payment indexer disabled"}
	}
	var query ListPaymentsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params[0], &query); err != nil {
			return nil, invalidParams("invalid query: %v", err)
		}
	}
	if query.Limit < 0 || query.Offset < 0 {
		return nil, invalidParams("limit and offset must not be negative")
	}
	rows, total, err := s.index.ListPayments(r.Context(), strings.TrimSpace(query.Restaurant), query.Limit, query.Offset)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	out := PaymentsResult{Total: total, Payments: make([]PaymentResult, 0, len(rows))}
	for _, row := range rows {
		out.Payments = append(out.Payments, PaymentResult{
			ID:             row.ID.String(),
			Payer:          row.Payer,
			Restaurant:     row.Restaurant,
			OriginalAmount: row.OriginalAmount,
			AdjustedAmount: row.AdjustedAmount,
			CustomRatio:    row.CustomRatio,
			Timestamp:      row.Timestamp,
		})
	}
	return out, nil
}

func (s *Server) handleListRegistrations(r *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	if s.index == nil {
		return nil, &RPCError{Code: codeServerError, Message: "payment indexer disabled"}
	}
	addr, rpcErr := addressParam(params, 0, "restaurant")
	if rpcErr != nil {
		return nil, rpcErr
	}
	rows, err := s.index.Registrations(r.Context(), formatAddress(addr[:]))
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	out := make([]RegistrationResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, RegistrationResult{
			ID:         row.ID.String(),
			Restaurant: row.Restaurant,
			PlaceID:    row.PlaceID,
			Action:     row.Action,
			Sequence:   row.Sequence,
			Caller:     row.Caller,
			RecordedAt: row.CreatedAt.UTC().Unix(),
		})
	}
	return out, nil
}

func (s *Server) handleBalanceOf(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, ledgerError(err)
	}
	return balance.String(), nil
}

func (s *Server) handleAllowance(_ *http.Request, params []json.RawMessage) (interface{}, *RPCError) {
	owner, rpcErr := addressParam(params, 0, "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := addressParam(params, 1, "spender")
	if rpcErr != nil {
		return nil, rpcErr
	}
	allowance, err := s.node.Allowance(owner, spender)
	if err != nil {
		return nil, ledgerError(err)
	}
	return allowance.String(), nil
}

func (s *Server) handleTokenMetadata(_ *http.Request, _ []json.RawMessage) (interface{}, *RPCError) {
	meta, err := s.node.TokenMetadata()
	if err != nil {
		return nil, ledgerError(err)
	}
	supply, err := s.node.TotalSupply()
	if err != nil {
		return nil, ledgerError(err)
	}
	return TokenResult{
		Symbol:      meta.Symbol,
		Name:        meta.Name,
		Decimals:    meta.Decimals,
		TotalSupply: supply.String(),
	}, nil
}
