// Package dhcp answers PXE DHCP traffic for machines on the provisioning
// network, pointing them at the TFTP boot file.
package dhcp

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"

	"hatchd/services/boot/internal/config"
)

type Server struct {
	cfg    config.DHCPConfig
	logger *log.Logger
	pool   *leasePool
}

func NewServer(cfg config.DHCPConfig, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		pool:   newLeasePool(cfg.RangeStart, cfg.RangeEnd, cfg.LeaseTime),
	}, nil
}

func (s *Server) Run(ctx context.Context, ready *atomic.Bool) error {
	srv, err := server4.NewServer(s.cfg.Interface, nil, s.handle)
	if err != nil {
		return fmt.Errorf("start listener on %s: %w", s.cfg.Interface, err)
	}
	ready.Store(true)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dhcp serve: %w", err)
		}
	case <-ctx.Done():
		srv.Close()
		<-errCh
	}
	return nil
}

func (s *Server) handle(conn net.PacketConn, peer net.Addr, req *dhcpv4.DHCPv4) {
	switch req.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		s.respond(conn, peer, req, dhcpv4.MessageTypeOffer)
	case dhcpv4.MessageTypeRequest:
		s.respond(conn, peer, req, dhcpv4.MessageTypeAck)
	case dhcpv4.MessageTypeRelease:
		s.pool.Release(req.ClientHWAddr.String())
	default:
		// ignore other messages
	}
}

func (s *Server) respond(conn net.PacketConn, peer net.Addr, req *dhcpv4.DHCPv4, msgType dhcpv4.MessageType) {
	mac := req.ClientHWAddr.String()
	ip := s.pool.Assign(mac)
	if ip == nil {
		s.logger.Printf("WARN no available lease for %s", mac)
		return
	}

	reply, err := dhcpv4.NewReplyFromRequest(req)
	if err != nil {
		s.logger.Printf("ERROR create reply: %v", err)
		return
	}
	reply.UpdateOption(dhcpv4.OptMessageType(msgType))
	reply.YourIPAddr = ip
	reply.ServerIPAddr = s.cfg.ServerIP
	reply.BootFileName = s.cfg.BootFilename
	reply.Options.Update(dhcpv4.OptServerIdentifier(s.cfg.ServerIP))
	reply.Options.Update(dhcpv4.OptSubnetMask(s.cfg.SubnetMask))
	reply.Options.Update(dhcpv4.OptRouter(s.cfg.Router))
	if len(s.cfg.DNSServers) > 0 {
		reply.Options.Update(dhcpv4.OptDNS(s.cfg.DNSServers...))
	}
	reply.Options.Update(dhcpv4.OptIPAddressLeaseTime(s.cfg.LeaseTime))
	if s.cfg.NextServer != nil {
		// Boot files live on a separate host; steer the firmware there.
		reply.ServerIPAddr = s.cfg.NextServer
		reply.Options.Update(dhcpv4.OptTFTPServerName(s.cfg.NextServer.String()))
	}

	if _, err := conn.WriteTo(reply.ToBytes(), peer); err != nil {
		s.logger.Printf("ERROR send %s to %s: %v", msgType, mac, err)
	}
}
