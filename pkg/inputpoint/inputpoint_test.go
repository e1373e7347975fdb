package inputpoint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	p := ParamsFromNames("q", "page", "q", "")
	assert.Equal(t, []string{"q", "page"}, p.Names())

	p = p.Add("sort", "asc")
	v, ok := p.Get("sort")
	assert.True(t, ok)
	assert.Equal(t, "asc", v)

	_, ok = p.Get("missing")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	a := InputPoint{URL: "http://t/login", Method: POST, Params: ParamsFromNames("user", "pass")}
	b := InputPoint{URL: "http://t/login", Method: POST, Params: ParamsFromNames("pass", "user")}
	c := InputPoint{URL: "http://t/login", Method: POST, Params: ParamsFromNames("email")}
	d := InputPoint{URL: "http://t/login", Method: GET, Params: ParamsFromNames("user", "pass")}

	assert.Equal(t, KeyURLMethod(a), KeyURLMethod(c))
	assert.NotEqual(t, KeyURLMethod(a), KeyURLMethod(d))

	assert.Equal(t, KeyURLMethodParams(a), KeyURLMethodParams(b))
	assert.NotEqual(t, KeyURLMethodParams(a), KeyURLMethodParams(c))
}

func TestForm(t *testing.T) {
	assert.Nil(t, InputPoint{URL: "http://t/"}.Form())

	f := InputPoint{FormName: "search", FormAction: "/s"}.Form()
	require.NotNil(t, f)
	assert.Equal(t, "search", f.Name)
	assert.Equal(t, "/s", f.Action)
}

func TestSet_CollapsesDuplicates(t *testing.T) {
	s := NewSet(nil)
	ip := InputPoint{URL: "http://t/?q=1", Method: GET, Params: ParamsFromNames("q")}

	assert.True(t, s.Add(ip))
	assert.False(t, s.Add(ip))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.HasMethod(GET))
	assert.False(t, s.HasMethod(POST))
}

func TestSet_ConcurrentAdd(t *testing.T) {
	s := NewSet(KeyURLMethodParams)
	var wg sync.WaitGroup
	var stored sync.Map
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				ip := InputPoint{URL: fmt.Sprintf("http://t/p%d", i), Method: GET}
				if s.Add(ip) {
					stored.Store(fmt.Sprintf("%d-%d", w, i), true)
				}
			}
		}()
	}
	wg.Wait()

	count := 0
	stored.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 50, count, "exactly one producer wins each key")
}

func TestSet_ItemsAreCopies(t *testing.T) {
	s := NewSet(nil)
	s.Add(InputPoint{URL: "http://t/b", Method: GET, Params: ParamsFromNames("x")})
	s.Add(InputPoint{URL: "http://t/a", Method: GET})

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "http://t/a", items[0].URL)

	items[1].Params[0].Name = "mutated"
	assert.Equal(t, "x", s.Items()[1].Params[0].Name)
}
