package avatar

import "testing"

func TestMouthShape_IsVowel(t *testing.T) {
	tests := []struct {
		shape MouthShape
		want  bool
	}{
		{MouthA, true},
		{MouthE, true},
		{MouthI, true},
		{MouthO, true},
		{MouthU, true},
		{MouthClose, false},
		{MouthShape("X"), false},
		{MouthShape(""), false},
	}

	for _, tt := range tests {
		if got := tt.shape.IsVowel(); got != tt.want {
			t.Errorf("MouthShape(%q).IsVowel() = %v, want %v", tt.shape, got, tt.want)
		}
	}
}
