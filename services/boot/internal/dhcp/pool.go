package dhcp

import (
	"net"
	"strings"
	"sync"
	"time"
)

type lease struct {
	ip        net.IP
	expiresAt time.Time
}

// leasePool hands out IPv4 addresses from a contiguous range, remembering
// the address a MAC last held until its lease expires.
type leasePool struct {
	mu        sync.Mutex
	leases    map[string]lease
	startIP   net.IP
	endIP     net.IP
	nextIP    net.IP
	leaseTime time.Duration
	now       func() time.Time
}

func newLeasePool(start, end net.IP, leaseTime time.Duration) *leasePool {
	return &leasePool{
		leases:    make(map[string]lease),
		startIP:   start.To4(),
		endIP:     end.To4(),
		nextIP:    start.To4(),
		leaseTime: leaseTime,
		now:       time.Now,
	}
}

// Assign returns the address leased to mac, extending an unexpired lease or
// allocating a fresh one. It returns nil when the range is exhausted.
func (p *leasePool) Assign(mac string) net.IP {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.leases[mac]; ok && l.expiresAt.After(p.now()) {
		return l.ip
	}

	if ip := p.allocateFrom(cloneIP(p.nextIP), mac); ip != nil {
		return ip
	}
	// Wrap around and rescan from the start of the range; earlier leases may
	// have expired.
	return p.allocateFrom(cloneIP(p.startIP), mac)
}

func (p *leasePool) allocateFrom(ip net.IP, mac string) net.IP {
	for ; compareIP(ip, p.endIP) <= 0; ip = incrementIP(ip) {
		if p.isAllocated(ip) {
			continue
		}
		p.leases[mac] = lease{ip: ip, expiresAt: p.now().Add(p.leaseTime)}
		p.nextIP = incrementIP(ip)
		return ip
	}
	return nil
}

// Release drops the lease held by mac, if any.
func (p *leasePool) Release(mac string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.leases, mac)
}

func (p *leasePool) isAllocated(ip net.IP) bool {
	for _, l := range p.leases {
		if l.expiresAt.After(p.now()) && ip.Equal(l.ip) {
			return true
		}
	}
	return false
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	dup := make(net.IP, len(ip))
	copy(dup, ip)
	return dup
}

func incrementIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	res := cloneIP(ip)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			break
		}
	}
	return res
}

func compareIP(a, b net.IP) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	aa := a.To4()
	bb := b.To4()
	if aa == nil || bb == nil {
		return strings.Compare(a.String(), b.String())
	}
	for i := range aa {
		if aa[i] < bb[i] {
			return -1
		}
		if aa[i] > bb[i] {
			return 1
		}
	}
	return 0
}
