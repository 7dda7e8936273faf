package hashes

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// URIType distinguishes the text formats a digest can be written in.
type URIType int

// Recognized digest link formats.
const (
	TypeNone URIType = iota
	TypeHashURI
	TypeNamedInfo
	TypePrefix
	TypeSSB
	TypeMagnet
)

// ErrParse is returned when a string is not a recognized digest format.
var ErrParse = errors.New("hashes: unrecognized hash format")

// URI is a parsed digest reference: which algorithm, which bytes, and the
// syntax it arrived in. The store and scheduler only ever see the
// (Algo, Digest) pair.
type URI struct {
	Type   URIType
	Algo   Algo
	Digest []byte
}

var (
	hashURIRe   = regexp.MustCompile(`(?i)^hash://([a-z0-9.-]+)/([a-z0-9.%_-]+)(\?[a-z0-9.%_=&-]+)?(#[a-z0-9.%_-]+)?$`)
	namedInfoRe = regexp.MustCompile(`(?i)^ni:///([a-z0-9.-]+);([A-Za-z0-9_-]+)$`)
	ssbRe       = regexp.MustCompile(`^&([A-Za-z0-9+/]{8,}={0,2})\.([a-z0-9]{3,})$`)
	magnetRe    = regexp.MustCompile(`(?i)^magnet:.*[?&]xt=urn:([a-z0-9]+):([a-z0-9]+)`)
	prefixRe    = regexp.MustCompile(`^([a-z0-9]+)-([A-Za-z0-9+/]+={0,2})$`)
)

// Parse tries each known format in turn.
func Parse(s string) (URI, error) {
	parsers := []func(string) (URI, error){
		ParseHashURI,
		ParseNamedInfo,
		ParseSSB,
		ParseMagnet,
		ParsePrefix,
	}
	for _, p := range parsers {
		if u, err := p(s); err == nil {
			return u, nil
		}
	}
	return URI{}, ErrParse
}

// ParseHashURI parses "hash://algo/hexdigest", ignoring any query or
// fragment.
func ParseHashURI(s string) (URI, error) {
	m := hashURIRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, ErrParse
	}
	algo := ParseAlgo(m[1])
	digest, err := HexDecode(m[2])
	if err != nil {
		return URI{}, err
	}
	return checked(URI{Type: TypeHashURI, Algo: algo, Digest: digest})
}

// ParseNamedInfo parses RFC 6920 "ni:///alg;base64url".
func ParseNamedInfo(s string) (URI, error) {
	m := namedInfoRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, ErrParse
	}
	algo := ParseAlgo(m[1])
	digest, err := base64.RawURLEncoding.DecodeString(m[2])
	if err != nil {
		return URI{}, ErrParse
	}
	return checked(URI{Type: TypeNamedInfo, Algo: algo, Digest: digest})
}

// ParseSSB parses Secure Scuttlebutt "&base64.algo" references.
func ParseSSB(s string) (URI, error) {
	m := ssbRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, ErrParse
	}
	algo := ParseAlgo(m[2])
	digest, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return URI{}, ErrParse
	}
	return checked(URI{Type: TypeSSB, Algo: algo, Digest: digest})
}

// ParseMagnet extracts the xt=urn:algo:hex topic of a magnet link. "btih"
// is treated as SHA-1.
func ParseMagnet(s string) (URI, error) {
	m := magnetRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, ErrParse
	}
	algo := ParseAlgo(m[1])
	digest, err := HexDecode(m[2])
	if err != nil {
		return URI{}, err
	}
	return checked(URI{Type: TypeMagnet, Algo: algo, Digest: digest})
}

// ParsePrefix parses subresource-integrity style "algo-base64" strings.
func ParsePrefix(s string) (URI, error) {
	m := prefixRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, ErrParse
	}
	algo := ParseAlgo(m[1])
	digest, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return URI{}, ErrParse
	}
	return checked(URI{Type: TypePrefix, Algo: algo, Digest: digest})
}

func checked(u URI) (URI, error) {
	if !u.Algo.Valid() {
		return URI{}, ErrParse
	}
	if len(u.Digest) == 0 || len(u.Digest) > DigestMax {
		return URI{}, ErrParse
	}
	// A digest prefix may be shorter than the full length, never longer.
	if len(u.Digest) > u.Algo.DigestLen() {
		return URI{}, ErrParse
	}
	return u, nil
}

// Format renders u in the syntax named by u.Type.
func (u URI) Format() (string, error) {
	if !u.Algo.Valid() || len(u.Digest) == 0 {
		return "", fmt.Errorf("hashes: cannot format %v/%d bytes", u.Algo, len(u.Digest))
	}
	name := u.Algo.String()
	switch u.Type {
	case TypeHashURI:
		return fmt.Sprintf("hash://%s/%s", name, hex.EncodeToString(u.Digest)), nil
	case TypeNamedInfo:
		return fmt.Sprintf("ni:///%s;%s", name, base64.RawURLEncoding.EncodeToString(u.Digest)), nil
	case TypeSSB:
		return fmt.Sprintf("&%s.%s", base64.StdEncoding.EncodeToString(u.Digest), name), nil
	case TypeMagnet:
		return fmt.Sprintf("magnet:?xt=urn:%s:%s", name, hex.EncodeToString(u.Digest)), nil
	case TypePrefix:
		return fmt.Sprintf("%s-%s", name, base64.StdEncoding.EncodeToString(u.Digest)), nil
	default:
		return "", fmt.Errorf("hashes: cannot format type %d", u.Type)
	}
}

// Variant renders the same digest in another syntax.
func (u URI) Variant(t URIType) (string, error) {
	v := u
	v.Type = t
	return v.Format()
}

// Normalize parses any recognized format and re-renders it as a canonical
// hash URI.
func Normalize(s string) (string, error) {
	u, err := Parse(s)
	if err != nil {
		return "", err
	}
	u.Type = TypeHashURI
	return u.Format()
}

// HexDecode parses untrusted hex input. Odd-length strings lose their
// trailing nibble; non-hex characters are an error.
func HexDecode(s string) ([]byte, error) {
	s = s[:len(s)-len(s)%2]
	out := make([]byte, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		hi := hexVal(s[i])
		lo := hexVal(s[i+1])
		if hi < 0 || lo < 0 {
			return nil, ErrParse
		}
		out = append(out, byte(hi<<4|lo))
	}
	return out, nil
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 0xA
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 0xA
	default:
		return -1
	}
}

// HexEncode is the canonical lowercase encoding used in hash URIs.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
