// Command gt is a CLI client for the goph-talk service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/goph-talk/internal/api"
	grpcserver "github.com/and161185/goph-talk/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "gophtalk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gophtalk")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tokenFile{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return tokenFile{}, errors.New("no valid token (login required)")
	}
	return tf, nil
}

// tokenFromAuth converts a login answer into the stored form.
func tokenFromAuth(r *api.AuthResponse) tokenFile {
	exp := time.Now().Add(time.Hour)
	if r.ExpiresAt > 0 {
		exp = time.UnixMilli(r.ExpiresAt)
	}
	return tokenFile{AccessToken: r.Token, ExpiresAt: exp, UserID: r.User.ID, Username: r.User.Username}
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

type tlsOpts struct {
	caPath    string
	skipCheck bool
	plaintext bool
}

func loadTLS(o tlsOpts) (credentials.TransportCredentials, error) {
	switch {
	case o.plaintext:
		return insecure.NewCredentials(), nil
	case o.skipCheck:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case o.caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(o.caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, addr string, o tlsOpts, bearer string) (*grpc.ClientConn, *grpcserver.Client, error) {
	creds, err := loadTLS(o)
	if err != nil {
		return nil, nil, err
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, grpcserver.NewClient(cc), nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `gt CLI
Usage:
  gt -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  register   -u <username> -p <password> -phone <phone> [-name <display name>]
  login      -u <username> -p <password>           (saves token)
  whoami
  contacts
  history    -with <user id>
  send       -to <user id> -m <text>               (prints the stored message)
  listen                                           (prints live messages until interrupted)
  verify-send -phone <phone>
  verify     -phone <phone> -code <code>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skip := flag.Bool("insecure", false, "skip cert verify (dev)")
	plain := flag.Bool("plaintext", false, "no TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]
	o := tlsOpts{caPath: *caPath, skipCheck: *skip, plaintext: *plain}

	// listen runs until interrupted; everything else is bounded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cmd != "listen" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	switch cmd {

	case "version":
		fmt.Printf("gt %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		phone := fs.String("phone", "", "phone number")
		name := fs.String("name", "", "display name")
		_ = fs.Parse(args)
		if *u == "" || *p == "" || *phone == "" {
			fmt.Fprintln(os.Stderr, "need -u, -p and -phone")
			os.Exit(1)
		}

		cc, cli, err := dial(ctx, *addr, o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()

		resp, err := cli.Register(ctx, &api.RegisterRequest{Username: *u, Password: *p, Phone: *phone, DisplayName: *name})
		if err != nil {
			fail(err)
		}
		if err := saveToken(tokenFromAuth(resp)); err != nil {
			fail(err)
		}
		printJSON(resp.User)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}

		cc, cli, err := dial(ctx, *addr, o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()

		resp, err := cli.Login(ctx, &api.LoginRequest{Username: *u, Password: *p})
		if err != nil {
			fail(err)
		}
		if err := saveToken(tokenFromAuth(resp)); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whoami":
		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		out, err := cli.Me(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(out.User)

	case "contacts":
		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		out, err := cli.Contacts(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(out.Contacts)

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		with := fs.Int64("with", 0, "other user id")
		_ = fs.Parse(args)
		if *with <= 0 {
			fmt.Fprintln(os.Stderr, "need -with")
			os.Exit(1)
		}

		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		out, err := cli.History(ctx, &api.HistoryRequest{With: *with})
		if err != nil {
			fail(err)
		}
		for _, m := range out.Messages {
			fmt.Println(formatMessage(m))
		}

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		to := fs.Int64("to", 0, "recipient user id")
		text := fs.String("m", "", "message text")
		_ = fs.Parse(args)
		if *to <= 0 || *text == "" {
			fmt.Fprintln(os.Stderr, "need -to and -m")
			os.Exit(1)
		}

		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		st, err := cli.Connect(ctx)
		if err != nil {
			fail(err)
		}
		me, err := awaitReady(st)
		if err != nil {
			fail(err)
		}
		if err := st.Send(&api.Frame{Type: api.FramePrivateMessage, To: *to, Content: *text}); err != nil {
			fail(err)
		}
		msg, err := awaitEcho(st, me.ID, *to)
		_ = st.CloseSend()
		if err != nil {
			fail(err)
		}
		printJSON(msg)

	case "listen":
		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		st, err := cli.Connect(ctx)
		if err != nil {
			fail(err)
		}
		me, err := awaitReady(st)
		if err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "connected as %s (#%d)\n", me.Username, me.ID)
		if err := listen(ctx, st, os.Stdout); err != nil {
			fail(err)
		}

	case "verify-send":
		fs := flag.NewFlagSet("verify-send", flag.ExitOnError)
		phone := fs.String("phone", "", "phone number")
		_ = fs.Parse(args)

		cc, cli, err := dial(ctx, *addr, o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()

		if _, err := cli.SendVerification(ctx, &api.SendVerificationRequest{Phone: *phone}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "verify":
		fs := flag.NewFlagSet("verify", flag.ExitOnError)
		phone := fs.String("phone", "", "phone number")
		code := fs.String("code", "", "verification code")
		_ = fs.Parse(args)
		if *phone == "" || *code == "" {
			fmt.Fprintln(os.Stderr, "need -phone and -code")
			os.Exit(1)
		}

		cc, cli := authed(ctx, *addr, o)
		defer cc.Close()

		if _, err := cli.VerifyPhone(ctx, &api.VerifyPhoneRequest{Phone: *phone, Code: *code}); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

// ---- helpers ----

// authed dials with the saved token or exits.
func authed(ctx context.Context, addr string, o tlsOpts) (*grpc.ClientConn, *grpcserver.Client) {
	tf, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, cli, err := dial(ctx, addr, o, tf.AccessToken)
	if err != nil {
		fail(err)
	}
	return cc, cli
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
