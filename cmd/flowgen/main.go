// Command flowgen is a small bulk-transfer tool: a TCP server that loops
// forever accepting connections, each read to EOF and ACKed with a single
// byte; and a TCP client that connects, writes N bytes, half-closes, blocks
// for the ACK, and emits the flowproto completion/error record on stdout.
// The client optionally marks its socket's IP TOS byte with a DSCP value for
// priority-queue classification. It is the Go-native replacement for the
// external bulk-transfer tool the replayer would otherwise shell out to.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/netfabric/fabricsim/pkg/flowproto"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowgen",
	Short: "Minimal bulk-transfer server/client for flow replay",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a bulk-transfer server, accepting connections until killed",
	RunE:  runServe,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Connect to a server and send N bytes, reporting completion",
	RunE:  runSend,
}

var (
	listenAddr string
	targetAddr string
	numBytes   int64
	chunkSize  int
	dscp       int
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":5201", "address to listen on")
	sendCmd.Flags().StringVar(&targetAddr, "target", "", "address to connect to (required)")
	sendCmd.Flags().Int64Var(&numBytes, "bytes", 1024, "number of bytes to send")
	sendCmd.Flags().IntVar(&chunkSize, "chunk-size", 65536, "write chunk size in bytes")
	sendCmd.Flags().IntVar(&dscp, "dscp", -1, "DSCP value to mark the connection's IP TOS byte with, -1 disables marking")
	_ = sendCmd.MarkFlagRequired("target")

	rootCmd.AddCommand(serveCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServe listens forever: the port round-robin load-balancing scheme
// (§4.5) reuses the same N_PORTS listeners across the whole replay run, so a
// listener that quit after its first connection would fail every subsequent
// flow routed to it. Each connection is served in its own goroutine so a
// slow or hung client can't stall others queued behind it.
func runServe(cmd *cobra.Command, args []string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("flowgen: listen %s: %w", listenAddr, err)
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("flowgen: accept: %w", err)
		}
		go serveConn(conn)
	}
}

func serveConn(conn net.Conn) {
	defer conn.Close()

	n, err := io.Copy(io.Discard, conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowgen: read: %v\n", err)
		return
	}
	if _, err := conn.Write([]byte{flowproto.DefaultAckByte}); err != nil {
		fmt.Fprintf(os.Stderr, "flowgen: write ack: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "flowgen: served %d bytes\n", n)
}

func runSend(cmd *cobra.Command, args []string) error {
	start := time.Now()

	dialer := net.Dialer{}
	if dscp >= 0 {
		dialer.Control = dscpControl(dscp)
	}
	conn, err := dialer.DialContext(context.Background(), "tcp", targetAddr)
	if err != nil {
		return emitError(fmt.Errorf("dial %s: %w", targetAddr, err))
	}
	defer conn.Close()

	host, _, _ := net.SplitHostPort(targetAddr)

	if err := writeN(conn, numBytes, chunkSize); err != nil {
		return emitError(err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.CloseWrite()
	}

	ack := make([]byte, flowproto.AckSize)
	if _, err := io.ReadFull(conn, ack); err != nil {
		return emitError(fmt.Errorf("waiting for ack: %w", err))
	}

	duration := time.Since(start).Seconds()
	cr := flowproto.NewCompletionRecord(host, numBytes, duration)
	out, err := flowproto.Encode(cr)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func writeN(w io.Writer, n int64, chunk int) error {
	if chunk <= 0 {
		chunk = 65536
	}
	buf := make([]byte, chunk)
	var sent int64
	for sent < n {
		want := int64(chunk)
		if remaining := n - sent; remaining < want {
			want = remaining
		}
		written, err := w.Write(buf[:want])
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		sent += int64(written)
	}
	return nil
}

// dscpControl returns a net.Dialer.Control callback that sets the dialed
// socket's IP_TOS byte to dscp<<2, the standard DSCP-in-top-six-bits-of-TOS
// encoding, before the connection completes. This is how DSCP 8/4 marking
// (§4.6) reaches the wire for priority-queue classification downstream.
func dscpControl(dscp int) func(network, address string, c syscall.RawConn) error {
	tos := dscp << 2
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tos)
		}); err != nil {
			return err
		}
		return sockErr
	}
}

func emitError(err error) error {
	out, encErr := flowproto.Encode(flowproto.NewErrorRecord(err))
	if encErr == nil {
		_, _ = os.Stdout.Write(out)
	}
	return err
}

