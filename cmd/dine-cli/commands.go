package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"dinechain/core/types"
	"dinechain/crypto"
	"dinechain/rpc"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, usagef("invalid amount %q", raw)
	}
	return amount, nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, usagef("invalid address %q: %v", raw, err)
	}
	return addr.Array(), nil
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	pass, err := c.pass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(c.keyFile, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", c.keyFile, err)
	}
	return key, nil
}

// submit signs a transaction with the wallet key at the sender's next nonce
// and prints the receipt.
func (c *cli) submit(txType types.TxType, to *[20]byte, value *big.Int, data string) error {
	key, err := c.loadKey()
	if err != nil {
		return err
	}
	sender := key.PubKey().Address()
	var params rpc.ParamsResult
	if err := c.call("dine_getParams", &params); err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	var nonce uint64
	if err := c.call("dine_getNonce", &nonce, sender.String()); err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	tx := &types.Transaction{ChainID: params.ChainID, Type: txType, Nonce: nonce, Value: value}
	if to != nil {
		tx.To = append([]byte(nil), to[:]...)
	}
	if data != "" {
		tx.Data = []byte(data)
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	var receipt rpc.ReceiptResult
	if err := c.call("dine_sendTransaction", &receipt, rpc.EncodeTransaction(tx)); err != nil {
		return err
	}
	return c.print(receipt)
}

func runGenerateKey(c *cli, args []string) error {
	fs := newFlagSet("generate-key")
	out := fs.String("out", c.keyFile, "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	pass, err := c.pass.GetNew()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fmt.Errorf("save keystore: %w", err)
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(c.stdout, "Generated new key and saved to %s\n", *out)
	fmt.Fprintf(c.stdout, "Address: %s (%s)\n", addr.String(), addr.Hex())
	return nil
}

func runAddress(c *cli, _ []string) error {
	addr, err := crypto.KeystoreAddress(c.keyFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s\n%s\n", addr.String(), addr.Hex())
	return nil
}

func runRegister(c *cli, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usagef("place id required")
	}
	return c.submit(types.TxTypeRegisterRestaurant, nil, nil, args[0])
}

func runRemove(c *cli, args []string) error {
	if len(args) != 1 {
		return usagef("restaurant address required")
	}
	target, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	return c.submit(types.TxTypeRemoveRestaurant, &target, nil, "")
}

func runApprove(c *cli, args []string) error {
	fs := newFlagSet("approve")
	spenderFlag := fs.String("spender", "", "spender address (defaults to the ledger settlement address)")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() != 1 {
		return usagef("amount required")
	}
	amount, err := parseAmount(fs.Arg(0))
	if err != nil {
		return err
	}
	spenderRaw := strings.TrimSpace(*spenderFlag)
	if spenderRaw == "" {
		var params rpc.ParamsResult
		if err := c.call("dine_getParams", &params); err != nil {
			return fmt.Errorf("fetch ledger params: %w", err)
		}
		spenderRaw = params.Spender
	}
	spender, err := parseAddress(spenderRaw)
	if err != nil {
		return err
	}
	return c.submit(types.TxTypeApprove, &spender, amount, "")
}

func runTransfer(c *cli, args []string) error {
	if len(args) != 2 {
		return usagef("recipient and amount required")
	}
	to, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	return c.submit(types.TxTypeTransfer, &to, amount, "")
}

func runPay(c *cli, args []string) error {
	if len(args) != 2 {
		return usagef("restaurant and amount required")
	}
	restaurant, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	return c.submit(types.TxTypePay, &restaurant, amount, "")
}

func runPreview(c *cli, args []string) error {
	if len(args) != 2 {
		return usagef("restaurant and amount required")
	}
	if _, err := parseAmount(args[1]); err != nil {
		return err
	}
	var quote rpc.QuoteResult
	if err := c.call("dine_previewPayment", &quote, args[0], strings.TrimSpace(args[1])); err != nil {
		return err
	}
	return c.print(quote)
}

func runRatio(c *cli, args []string) error {
	if len(args) != 1 {
		return usagef("restaurant address required")
	}
	var ratio string
	if err := c.call("dine_calculateCustomRatio", &ratio, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, ratio)
	return nil
}

func runList(c *cli, _ []string) error {
	var ranked []rpc.RatioResult
	if err := c.call("dine_getRestaurantsByRatio", &ranked); err != nil {
		return err
	}
	for _, entry := range ranked {
		fmt.Fprintln(c.stdout, entry.Display)
	}
	return nil
}

func runBalance(c *cli, args []string) error {
	var target string
	switch len(args) {
	case 0:
		addr, err := crypto.KeystoreAddress(c.keyFile)
		if err != nil {
			return err
		}
		target = addr.String()
	case 1:
		target = args[0]
	default:
		return usagef("at most one address")
	}
	var balance string
	if err := c.call("token_balanceOf", &balance, target); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s %s\n", target, balance)
	return nil
}

func runPayments(c *cli, args []string) error {
	fs := newFlagSet("payments")
	restaurant := fs.String("restaurant", "", "filter by restaurant address")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	var page rpc.PaymentsResult
	query := rpc.ListPaymentsParams{Restaurant: *restaurant, Limit: *limit, Offset: *offset}
	if err := c.call("dine_listPayments", &page, query); err != nil {
		return err
	}
	return c.print(page)
}

func runRegistrations(c *cli, args []string) error {
	if len(args) != 1 {
		return usagef("restaurant address required")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	var history []rpc.RegistrationResult
	if err := c.call("dine_listRegistrations", &history, crypto.MustNewAddress(crypto.DinePrefix, addr[:]).String()); err != nil {
		return err
	}
	return c.print(history)
}

func runReceipt(c *cli, args []string) error {
	if len(args) != 1 {
		return usagef("transaction hash required")
	}
	if _, err := types.ParseHash(args[0]); err != nil {
		return usagef("%v", err)
	}
	var receipt rpc.ReceiptResult
	if err := c.call("dine_getReceipt", &receipt, args[0]); err != nil {
		return err
	}
	return c.print(receipt)
}
