package render

import "testing"

const source = `public class Conditional1 {
    public static void main(String[] args) {
        int a = 5;
        if (a > 2) {
            a = a + 1;
        }
    }
}
`

func TestLine(t *testing.T) {
	s, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer s.Close()

	if got := s.Line(3); got != "int a = 5;" {
		t.Errorf("Line(3) = %q, want the declaration", got)
	}
	if got := s.Line(0); got != "" {
		t.Errorf("Line(0) = %q, want empty", got)
	}
	if got := s.Line(1000); got != "" {
		t.Errorf("Line(1000) = %q, want empty", got)
	}
}

func TestExprAt(t *testing.T) {
	s, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer s.Close()

	tests := []struct {
		name      string
		line, col int
		want      string
	}{
		{"declaration statement", 3, 8, "int a = 5"},
		{"assignment inside if", 5, 12, "a = a + 1"},
		{"no node starts mid-token", 3, 9, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ExprAt(tt.line, tt.col); got != tt.want {
				t.Errorf("ExprAt(%d, %d) = %q, want %q", tt.line, tt.col, got, tt.want)
			}
		})
	}
}

func TestExprAtAfterClose(t *testing.T) {
	s, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s.Close()
	if got := s.ExprAt(3, 8); got != "" {
		t.Errorf("ExprAt after Close = %q, want empty", got)
	}
}
