package streamkey

import "testing"

func TestKey_LessOrdersByTrajectoryThenSensor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b Key
		want bool
	}{
		{New(0, "a"), New(1, "a"), true},
		{New(1, "a"), New(0, "a"), false},
		{New(0, "a"), New(0, "b"), true},
		{New(0, "b"), New(0, "a"), false},
		{New(0, "a"), New(0, "a"), false},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.want {
			t.Errorf("%+v.Less(%+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestKey_String(t *testing.T) {
	t.Parallel()

	if got, want := New(3, "lidar").String(), "3/lidar"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
