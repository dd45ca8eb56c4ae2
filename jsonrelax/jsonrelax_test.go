package jsonrelax

import (
	"strings"
	"testing"
)

func TestParseQuotedKeysAndValues(t *testing.T) {
	obj, err := Parse([]byte(`{"xvm": 500, "id": "abc"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, ok := obj.Get("xvm")
	if !ok || v.Kind != KindNumber || v.Number != 500 {
		t.Fatalf("xvm = %+v, ok=%v", v, ok)
	}
	v, ok = obj.Get("id")
	if !ok || v.Kind != KindString || v.String != "abc" {
		t.Fatalf("id = %+v, ok=%v", v, ok)
	}
}

func TestParseUnquotedKeys(t *testing.T) {
	obj, err := Parse([]byte(`{xvm:500,xtm:250}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(obj.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(obj.Pairs))
	}
	if obj.Pairs[0].Key != "xvm" || obj.Pairs[1].Key != "xtm" {
		t.Fatalf("unexpected key order: %+v", obj.Pairs)
	}
}

func TestParseBoolAndNullLiterals(t *testing.T) {
	obj, err := Parse([]byte(`{a:t,b:f,c:n}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, _ := obj.Get("a")
	if a.Kind != KindBool || a.Bool != true {
		t.Fatalf("a = %+v", a)
	}
	b, _ := obj.Get("b")
	if b.Kind != KindBool || b.Bool != false {
		t.Fatalf("b = %+v", b)
	}
	c, _ := obj.Get("c")
	if c.Kind != KindNull {
		t.Fatalf("c = %+v", c)
	}
}

func TestParseEmptyStringIsNull(t *testing.T) {
	obj, err := Parse([]byte(`{"gc":""}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, _ := obj.Get("gc")
	if v.Kind != KindNull {
		t.Fatalf("empty string value = %+v, want KindNull", v)
	}
}

func TestParseHexDataLiteral(t *testing.T) {
	obj, err := Parse([]byte(`{d:0xDEADBEEF}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, _ := obj.Get("d")
	if v.Kind != KindData || v.Data != 0xDEADBEEF {
		t.Fatalf("d = %+v", v)
	}
}

func TestParseNegativeAndFloatNumbers(t *testing.T) {
	obj, err := Parse([]byte(`{a:-12.5,b:3e2}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, _ := obj.Get("a")
	if a.Kind != KindNumber || a.Number != -12.5 {
		t.Fatalf("a = %+v", a)
	}
	b, _ := obj.Get("b")
	if b.Kind != KindNumber || b.Number != 300 {
		t.Fatalf("b = %+v", b)
	}
}

func TestParseOpaqueArray(t *testing.T) {
	obj, err := Parse([]byte(`{pts:[[1,2],[3,4]]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, _ := obj.Get("pts")
	if v.Kind != KindArray || v.Array != "[[1,2],[3,4]]" {
		t.Fatalf("pts = %+v", v)
	}
}

func TestParseNestedObjectWithinDepth(t *testing.T) {
	obj, err := Parse([]byte(`{g1:{x:10,y:20}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, ok := obj.Get("g1")
	if !ok || v.Kind != KindObject {
		t.Fatalf("g1 = %+v, ok=%v", v, ok)
	}
	x, ok := v.Object.Get("x")
	if !ok || x.Number != 10 {
		t.Fatalf("g1.x = %+v, ok=%v", x, ok)
	}
}

func TestParseDepthExceeded(t *testing.T) {
	if _, err := Parse([]byte(`{a:{b:{c:1}}}`)); err == nil {
		t.Fatal("expected error for nesting beyond MaxDepth")
	}
}

func TestParsePairsExceeded(t *testing.T) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i := 0; i <= MaxPairs; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("a")
		sb.WriteString(itoa(i))
		sb.WriteString(":1")
	}
	sb.WriteByte('}')
	if _, err := Parse([]byte(sb.String())); err == nil {
		t.Fatal("expected error for exceeding MaxPairs")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestParseInputTooLarge(t *testing.T) {
	big := strings.Repeat("a", MaxInputBytes+1)
	if _, err := Parse([]byte(big)); err == nil {
		t.Fatal("expected error for input exceeding MaxInputBytes")
	}
}

func TestParseTrailingDataRejected(t *testing.T) {
	if _, err := Parse([]byte(`{a:1} garbage`)); err == nil {
		t.Fatal("expected error for trailing data after the object")
	}
}

func TestParseMalformedObjectReportsOffset(t *testing.T) {
	_, err := Parse([]byte(`{a:1,}`))
	if err == nil {
		t.Fatal("expected error for dangling comma")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("err type = %T, want *ParseError", err)
	}
	if pe.Offset <= 0 {
		t.Fatalf("Offset = %d, want > 0", pe.Offset)
	}
}

func TestParseEmptyObject(t *testing.T) {
	obj, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(obj.Pairs) != 0 {
		t.Fatalf("got %d pairs, want 0", len(obj.Pairs))
	}
}
