package census

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetctl/internal/dispatch"
	"fleetctl/internal/transport/transporttest"
	"fleetctl/util"
)

func newCensus(responses map[int]transporttest.Response) (*Census, *transporttest.Fake) {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	fake := &transporttest.Fake{Responses: responses}
	return &Census{
		Dispatcher: &dispatch.Dispatcher{Transport: fake, Logger: l},
		Command:    func(port int) string { return "netstat -an | grep :" + strconv.Itoa(port) },
	}, fake
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ip   string
		ok   bool
	}{
		{"remote side", "tcp  0  0 10.1.1.1:443  192.168.1.5:902  ESTABLISHED", "192.168.1.5", true},
		{"first match wins", "tcp 0 0 10.0.0.1:902 10.0.0.2:902 ESTABLISHED", "10.0.0.1", true},
		{"no match", "tcp 0 0 10.0.0.1:22 10.0.0.2:51000 ESTABLISHED", "", false},
		{"longer port not matched", "tcp 0 0 10.0.0.1:22 10.0.0.2:1902 ESTABLISHED", "", false},
		{"ipv6", "tcp6 0 0 ::1:22 fe80::1:902 ESTABLISHED", "fe80::1", true},
		{"bare suffix ignored", "tcp 0 0 :902 10.0.0.3:902", "10.0.0.3", true},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, ok := ParseLine(tt.line, 902)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ip, ip)
		})
	}
}

func TestRun_AggregatesAcrossEndpoints(t *testing.T) {
	c, _ := newCensus(map[int]transporttest.Response{
		10: {Output: "tcp 0 0 10.9.0.10:33000 192.168.1.5:902 ESTABLISHED\n"},
		11: {Output: "tcp 0 0 10.9.0.11:33001 192.168.1.5:902 ESTABLISHED\n" +
			"tcp 0 0 10.9.0.11:33002 192.168.1.9:902 ESTABLISHED\n"},
	})

	r := c.Run(context.Background(), 902, []int{10, 11})

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, map[string]int{"192.168.1.5": 2, "192.168.1.9": 1}, r.PerIP)
	assert.Equal(t, []IPCount{{"192.168.1.5", 2}, {"192.168.1.9", 1}}, r.Sorted())
}

func TestRun_SumMatchesTotal(t *testing.T) {
	c, _ := newCensus(map[int]transporttest.Response{
		1: {Output: "a 1.1.1.1:902\nnoise\nb 2.2.2.2:902\nc 1.1.1.1:902\n"},
		2: {Output: "header line\n3.3.3.3:902 x\n"},
		3: {Output: ""},
	})

	r := c.Run(context.Background(), 902, []int{1, 2, 3})

	sum := 0
	for _, n := range r.PerIP {
		sum += n
	}
	assert.Equal(t, r.Total, sum)
	assert.Equal(t, 4, r.Total)
}

func TestRun_UnreachableDistinctFromZero(t *testing.T) {
	c, _ := newCensus(map[int]transporttest.Response{
		10: {Output: ""},
		11: {Unreachable: true},
		12: {ExitStatus: 127},
	})

	r := c.Run(context.Background(), 902, []int{10, 11, 12})

	require.Len(t, r.Endpoints, 3)
	assert.Equal(t, StatusOK, r.Endpoints[0].Status)
	assert.Equal(t, 0, r.Endpoints[0].Connections)
	assert.Equal(t, StatusUnreachable, r.Endpoints[1].Status)
	assert.Equal(t, StatusFailed, r.Endpoints[2].Status)
	assert.Equal(t, 0, r.Total)
}

func TestRun_Idempotent(t *testing.T) {
	c, _ := newCensus(map[int]transporttest.Response{
		10: {Output: "x 10.0.0.1:902\nx 10.0.0.2:902\n"},
		11: {Unreachable: true},
	})

	first := c.Run(context.Background(), 902, []int{10, 11})
	second := c.Run(context.Background(), 902, []int{10, 11})

	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.PerIP, second.PerIP)
	assert.Equal(t, first.Sorted(), second.Sorted())
}

func TestRun_UsesPortInCommand(t *testing.T) {
	c, fake := newCensus(nil)
	c.Run(context.Background(), 443, []int{10})

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "netstat -an | grep :443", calls[0].Command)
}

func TestSorted_TiesByAddress(t *testing.T) {
	r := &Result{PerIP: map[string]int{"10.0.0.3": 1, "10.0.0.1": 1, "10.0.0.2": 5}}
	assert.Equal(t, []IPCount{{"10.0.0.2", 5}, {"10.0.0.1", 1}, {"10.0.0.3", 1}}, r.Sorted())
}

func TestReport(t *testing.T) {
	r := &Result{
		Port:  902,
		Total: 3,
		PerIP: map[string]int{"192.168.1.5": 2, "192.168.1.9": 1},
		Endpoints: []EndpointCensus{
			{Endpoint: 10, Status: StatusOK, Connections: 3},
			{Endpoint: 11, Status: StatusOK},
			{Endpoint: 12, Status: StatusUnreachable},
		},
	}

	var b strings.Builder
	require.NoError(t, r.Report(&b))

	want := "port 902: 3 connection(s) from 2 address(es)\n" +
		"  192.168.1.5  2\n" +
		"  192.168.1.9  1\n" +
		"endpoints: 2 ok, 1 unreachable, 0 failed\n" +
		"  endpoint 10: 3\n" +
		"  endpoint 11: 0\n" +
		"  endpoint 12: unreachable\n"
	assert.Equal(t, want, b.String())
}
