package xmlrpc

import (
	"math"
	"strings"
	"testing"
)

func TestEncodeMethodCall_Scalars(t *testing.T) {
	got, err := EncodeMethodCall("d.multicall", "main", "d.get_hash=", 42, true, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `<?xml version="1.0"?><methodCall><methodName>d.multicall</methodName><params>` +
		`<param><value><string>main</string></value></param>` +
		`<param><value><string>d.get_hash=</string></value></param>` +
		`<param><value><i4>42</i4></value></param>` +
		`<param><value><boolean>1</boolean></value></param>` +
		`<param><value><double>1.5</double></value></param>` +
		`</params></methodCall>`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestEncodeMethodCall_Types(t *testing.T) {
	tests := []struct {
		name  string
		param any
		want  string
	}{
		{"escaped string", "a<b&c", "<string>a&lt;b&amp;c</string>"},
		{"large int", int64(math.MaxInt32) + 1, "<i8>2147483648</i8>"},
		{"negative int", -7, "<i4>-7</i4>"},
		{"base64", []byte("hi"), "<base64>aGk=</base64>"},
		{"nil", nil, "<nil/>"},
		{"string slice", []string{"a", "b"}, "<array><data><value><string>a</string></value><value><string>b</string></value></data></array>"},
		{"nested array", []any{[]any{"x"}}, "<array><data><value><array><data><value><string>x</string></value></data></array></value></data></array>"},
		{"struct sorted", map[string]any{"params": []any{}, "methodName": "d.stop"},
			"<struct><member><name>methodName</name><value><string>d.stop</string></value></member>" +
				"<member><name>params</name><value><array><data></data></array></value></member></struct>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeMethodCall("m", tt.param)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(string(got), "<param><value>"+tt.want+"</value></param>") {
				t.Errorf("encoded call %s does not contain %s", got, tt.want)
			}
		})
	}
}

func TestEncodeMethodCall_UnicodeNeverFails(t *testing.T) {
	inputs := []string{"", "日本語", "emoji 🎉", "tab\tnewline\n", "é́"}
	for _, in := range inputs {
		if _, err := EncodeMethodCall("d.set_custom1", "hash", in); err != nil {
			t.Errorf("EncodeMethodCall(%q) failed: %v", in, err)
		}
	}
}

func TestEncodeMethodCall_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		param any
	}{
		{"invalid utf8", string([]byte{0xff, 0xfe})},
		{"nan", math.NaN()},
		{"channel", make(chan int)},
		{"int keyed map", map[int]string{1: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeMethodCall("m", tt.param); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEncodeFault(t *testing.T) {
	got, err := EncodeFault(&Fault{Code: -501, Message: "Could not find info-hash."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, part := range []string{"<fault>", "<name>faultCode</name><value><i4>-501</i4></value>", "Could not find info-hash."} {
		if !strings.Contains(string(got), part) {
			t.Errorf("fault %s missing %s", got, part)
		}
	}
}
