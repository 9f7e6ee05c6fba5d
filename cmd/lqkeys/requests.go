package main

import (
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lqwallet/lqkeys/confidential"
	"github.com/lqwallet/lqkeys/errorcodes"
	"github.com/lqwallet/lqkeys/liquid"
	"github.com/tidwall/gjson"
)

// errMalformedRequest is returned for request documents that cannot be
// decoded.
var errMalformedRequest = errorcodes.New(
	errorcodes.ErrCodeInvalidInput, "malformed request",
)

// parseDocument checks that data holds a JSON object.
func parseDocument(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json",
			errMalformedRequest)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: expected an object",
			errMalformedRequest)
	}

	return doc, nil
}

// parseHex decodes a required hex field.
func parseHex(r gjson.Result, field string) ([]byte, error) {
	v := r.Get(field)
	if !v.Exists() {
		return nil, fmt.Errorf("%w: missing field %q",
			errMalformedRequest, field)
	}

	b, err := hex.DecodeString(v.String())
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", errMalformedRequest,
			field, err)
	}

	return b, nil
}

// parseFixed decodes a required hex field of exactly n bytes.
func parseFixed(r gjson.Result, field string, n int) ([]byte, error) {
	b, err := parseHex(r, field)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: field %q must be %d bytes, got %d",
			errMalformedRequest, field, n, len(b))
	}

	return b, nil
}

func parse32(r gjson.Result, field string) ([32]byte, error) {
	b, err := parseFixed(r, field, 32)
	if err != nil {
		return [32]byte{}, err
	}

	return [32]byte(b), nil
}

func parse33(r gjson.Result, field string) ([33]byte, error) {
	b, err := parseFixed(r, field, 33)
	if err != nil {
		return [33]byte{}, err
	}

	return [33]byte(b), nil
}

// parseValue decodes a required unsigned amount.
func parseValue(r gjson.Result) (uint64, error) {
	v := r.Get("value")
	if !v.Exists() || v.Type != gjson.Number {
		return 0, fmt.Errorf("%w: missing numeric field \"value\"",
			errMalformedRequest)
	}

	return v.Uint(), nil
}

// parseAsset reads the asset of an amount, falling back to the asset of the
// whole document.
func parseAsset(r, doc gjson.Result) ([32]byte, error) {
	if r.Get("asset").Exists() {
		return parse32(r, "asset")
	}

	return parse32(doc, "asset")
}

// parseAmount decodes a blinded amount.
func parseAmount(r, doc gjson.Result) (confidential.ConfidentialAmount,
	error) {

	var (
		amount confidential.ConfidentialAmount
		err    error
	)
	if amount.Value, err = parseValue(r); err != nil {
		return amount, err
	}
	if amount.Asset, err = parseAsset(r, doc); err != nil {
		return amount, err
	}
	if amount.ValueBlind, err = parse32(r, "value_blind"); err != nil {
		return amount, err
	}
	if amount.AssetBlind, err = parse32(r, "asset_blind"); err != nil {
		return amount, err
	}

	return amount, nil
}

// parseExplicit decodes an unblinded amount.
func parseExplicit(r, doc gjson.Result) (confidential.ExplicitAmount, error) {
	value, err := parseValue(r)
	if err != nil {
		return confidential.ExplicitAmount{}, err
	}

	asset, err := parseAsset(r, doc)
	if err != nil {
		return confidential.ExplicitAmount{}, err
	}

	return confidential.ExplicitAmount{Value: value, Asset: asset}, nil
}

// parseOutputToBlind decodes an output of a blind request.
func parseOutputToBlind(r, doc gjson.Result) (confidential.OutputToBlind,
	error) {

	var (
		out confidential.OutputToBlind
		err error
	)
	if out.Amount, err = parseAmount(r, doc); err != nil {
		return out, err
	}
	if out.EcdhPrivkey, err = parse32(r, "ecdh_privkey"); err != nil {
		return out, err
	}
	if out.EcdhPubkey, err = parse33(r, "ecdh_pubkey"); err != nil {
		return out, err
	}
	if out.ScriptPubkey, err = parseHex(r, "script_pubkey"); err != nil {
		return out, err
	}
	if out.RandomSeed, err = parse32(r, "random_seed"); err != nil {
		return out, err
	}

	return out, nil
}

// parseBlindedOutput decodes a blinded output.
func parseBlindedOutput(r gjson.Result) (confidential.BlindedOutput, error) {
	var (
		out confidential.BlindedOutput
		err error
	)
	if out.ConfValue, err = parse33(r, "conf_value"); err != nil {
		return out, err
	}
	if out.ConfAsset, err = parse33(r, "conf_asset"); err != nil {
		return out, err
	}
	if out.EcdhPubkey, err = parse33(r, "ecdh_pubkey"); err != nil {
		return out, err
	}
	if out.ScriptPubkey, err = parseHex(r, "script_pubkey"); err != nil {
		return out, err
	}
	if out.RangeProof, err = parseHex(r, "range_proof"); err != nil {
		return out, err
	}

	// Surjection proofs are only needed to verify the output, not to
	// unblind or balance it.
	if r.Get("surjection_proof").Exists() {
		out.SurjectionProof, err = parseHex(r, "surjection_proof")
		if err != nil {
			return out, err
		}
	}

	return out, nil
}

// parseList decodes every element of an array field.
func parseList[T any](doc gjson.Result, field string,
	parse func(gjson.Result) (T, error)) ([]T, error) {

	v := doc.Get(field)
	if !v.Exists() {
		return nil, nil
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("%w: field %q must be an array",
			errMalformedRequest, field)
	}

	var (
		items  = v.Array()
		result = make([]T, 0, len(items))
	)
	for i, item := range items {
		parsed, err := parse(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		result = append(result, parsed)
	}

	return result, nil
}

// withDoc binds a parser that needs the enclosing document.
func withDoc[T any](doc gjson.Result,
	parse func(r, doc gjson.Result) (T, error)) func(gjson.Result) (T,
	error) {

	return func(r gjson.Result) (T, error) {
		return parse(r, doc)
	}
}

// parseBlindTxRequest decodes a blind request:
//
//	{"asset": hex, "inputs": [amount], "outputs": [output]}
func parseBlindTxRequest(data []byte) (*liquid.BlindTxRequest, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	inputs, err := parseList(doc, "inputs", withDoc(doc, parseAmount))
	if err != nil {
		return nil, err
	}

	outputs, err := parseList(
		doc, "outputs", withDoc(doc, parseOutputToBlind),
	)
	if err != nil {
		return nil, err
	}

	return &liquid.BlindTxRequest{Inputs: inputs, Outputs: outputs}, nil
}

// parseUnblindOutputRequest decodes an unblind request:
//
//	{"blinded": output, "ecdh_privkey": hex}
//
// The key is optional, the wallet blinding key is used without it.
func parseUnblindOutputRequest(data []byte) (*liquid.UnblindOutputRequest,
	error) {

	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	blinded, err := parseBlindedOutput(doc.Get("blinded"))
	if err != nil {
		return nil, fmt.Errorf("blinded: %w", err)
	}

	req := &liquid.UnblindOutputRequest{
		Blinded:     blinded,
		EcdhPrivkey: fn.None[[32]byte](),
	}
	if doc.Get("ecdh_privkey").Exists() {
		key, err := parse32(doc, "ecdh_privkey")
		if err != nil {
			return nil, err
		}
		req.EcdhPrivkey = fn.Some(key)
	}

	return req, nil
}

// parseVerifyBalanceRequest decodes a balance request:
//
//	{"asset": hex, "inputs": [amount], "outputs": [blinded],
//	 "explicit_outputs": [explicit]}
func parseVerifyBalanceRequest(data []byte) (*liquid.VerifyBalanceRequest,
	error) {

	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	inputs, err := parseList(doc, "inputs", withDoc(doc, parseAmount))
	if err != nil {
		return nil, err
	}

	outputs, err := parseList(doc, "outputs", parseBlindedOutput)
	if err != nil {
		return nil, err
	}

	explicit, err := parseList(
		doc, "explicit_outputs", withDoc(doc, parseExplicit),
	)
	if err != nil {
		return nil, err
	}

	return &liquid.VerifyBalanceRequest{
		Inputs:          inputs,
		Outputs:         outputs,
		ExplicitOutputs: explicit,
	}, nil
}

// blindedOutputResponse is the JSON form of a blinded output.
type blindedOutputResponse struct {
	ConfValue       string `json:"conf_value"`
	ConfAsset       string `json:"conf_asset"`
	EcdhPubkey      string `json:"ecdh_pubkey"`
	ScriptPubkey    string `json:"script_pubkey"`
	RangeProof      string `json:"range_proof"`
	SurjectionProof string `json:"surjection_proof"`
}

func newBlindedOutputResponse(
	out confidential.BlindedOutput) *blindedOutputResponse {

	return &blindedOutputResponse{
		ConfValue:       hex.EncodeToString(out.ConfValue[:]),
		ConfAsset:       hex.EncodeToString(out.ConfAsset[:]),
		EcdhPubkey:      hex.EncodeToString(out.EcdhPubkey[:]),
		ScriptPubkey:    hex.EncodeToString(out.ScriptPubkey),
		RangeProof:      hex.EncodeToString(out.RangeProof),
		SurjectionProof: hex.EncodeToString(out.SurjectionProof),
	}
}

// amountResponse is the JSON form of an unblinded amount.
type amountResponse struct {
	Value      uint64 `json:"value"`
	Asset      string `json:"asset"`
	ValueBlind string `json:"value_blind"`
	AssetBlind string `json:"asset_blind"`
}

func newAmountResponse(a confidential.ConfidentialAmount) *amountResponse {
	return &amountResponse{
		Value:      a.Value,
		Asset:      hex.EncodeToString(a.Asset[:]),
		ValueBlind: hex.EncodeToString(a.ValueBlind[:]),
		AssetBlind: hex.EncodeToString(a.AssetBlind[:]),
	}
}

// failureResponse is printed when a command fails.
type failureResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newFailureResponse(err error) *failureResponse {
	code := errorcodes.CodeOf(err)
	if code == "" {
		code = "Failure"
	}

	return &failureResponse{Code: code, Message: err.Error()}
}
