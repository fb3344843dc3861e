package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// keySeparator cannot appear in route names, methods or URL-encoded
// values, so adjacent components cannot run into each other.
const keySeparator = "\x00"

// ErrInvalidBody indicates a request body that is not a single JSON value.
var ErrInvalidBody = errors.New("request body is not valid JSON")

// canonicalEncoder writes CBOR in Core Deterministic Encoding: map keys
// sorted, shortest integer and float forms.
var canonicalEncoder = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: core deterministic mode: %v", err))
	}
	return em
}()

// KeyInput holds the request attributes that identify a cacheable response.
type KeyInput struct {
	Route  string
	Method string

	// Params are the values bound to the route's path placeholders.
	Params map[string]string
	Query  url.Values
	Body   []byte
}

// DeriveKey returns the cache key for in. Requests whose bodies are equal
// as JSON values (object key order and number spelling aside) share a key.
func DeriveKey(in KeyInput) (string, error) {
	body, err := CanonicalBody(in.Body)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	io.WriteString(h, in.Route)
	io.WriteString(h, keySeparator)
	io.WriteString(h, strings.ToUpper(in.Method))
	io.WriteString(h, keySeparator)
	writeParams(h, in.Params)
	io.WriteString(h, keySeparator)
	// Encode sorts by key.
	io.WriteString(h, in.Query.Encode())
	io.WriteString(h, keySeparator)
	h.Write(body)

	return in.Route + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

func writeParams(w io.Writer, params map[string]string) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if i > 0 {
			io.WriteString(w, "&")
		}
		io.WriteString(w, url.QueryEscape(name))
		io.WriteString(w, "=")
		io.WriteString(w, url.QueryEscape(params[name]))
	}
}

// CanonicalBody returns a deterministic encoding of a JSON body. An empty
// or whitespace-only body has no content and encodes to nil.
func CanonicalBody(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrInvalidBody)
	}

	out, err := canonicalEncoder.Marshal(normalizeNumbers(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return out, nil
}

// CBOR tags for numbers that are not int64. 30 is the registered
// rational number tag; numberLiteralTag marks literals kept verbatim.
const (
	rationalTag      = 30
	numberLiteralTag = 0x6e756d
)

// maxExactExponent bounds the exponents expanded to an exact value. Larger
// ones would make big.Rat allocate digits proportional to the exponent.
const maxExactExponent = 4096

// normalizeNumbers replaces json.Number values by their exact value so
// that 1, 1.0 and 1e0 encode identically while distinct values, however
// close, stay distinct.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case json.Number:
		return canonicalNumber(t.String())
	default:
		return v
	}
}

// canonicalNumber returns an int64 for integers in range, a bignum for
// larger integers and a tagged numerator/denominator pair otherwise.
func canonicalNumber(lit string) any {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return i
	}
	if !exponentInRange(lit) {
		return cbor.Tag{Number: numberLiteralTag, Content: lit}
	}

	r, ok := new(big.Rat).SetString(lit)
	if !ok {
		return cbor.Tag{Number: numberLiteralTag, Content: lit}
	}
	if r.IsInt() {
		if r.Num().IsInt64() {
			return r.Num().Int64()
		}
		return new(big.Int).Set(r.Num())
	}
	return cbor.Tag{Number: rationalTag, Content: []*big.Int{r.Num(), r.Denom()}}
}

func exponentInRange(lit string) bool {
	idx := strings.IndexAny(lit, "eE")
	if idx < 0 {
		return true
	}
	exp, err := strconv.Atoi(strings.TrimPrefix(lit[idx+1:], "+"))
	return err == nil && exp >= -maxExactExponent && exp <= maxExactExponent
}
