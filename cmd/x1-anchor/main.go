// x1-anchor hosts Anchor-style programs against a local account store.
//
// It prints program interfaces, derives program addresses, manages the
// accounts in the store and executes signed instructions through the
// dispatch and account validation engine.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fortiblox/x1-anchor/pkg/accounts"
	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/logging"
	"github.com/fortiblox/x1-anchor/pkg/metrics"
	"github.com/fortiblox/x1-anchor/pkg/pda"
	"github.com/fortiblox/x1-anchor/pkg/programs/greeter"
	"github.com/fortiblox/x1-anchor/pkg/programs/vault"
	"github.com/fortiblox/x1-anchor/pkg/runtime"
	"github.com/fortiblox/x1-anchor/pkg/snapshot"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	out        io.Writer
	configPath string
	cfg        Config
	log        *logrus.Logger
	programs   []*anchor.Program
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:               "x1-anchor",
		Short:             "Instruction dispatch and account validation engine",
		Version:           fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfigPath(), "Path to JSON configuration file")
	pf.String("data-dir", "", "Directory of the account store")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text, json")

	root.AddCommand(
		a.programsCmd(),
		a.idlCmd(),
		a.deriveCmd(),
		a.keygenCmd(),
		a.accountCmd(),
		a.snapshotCmd(),
		a.invokeCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	boot, err := logging.New("info", logging.FormatText, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(a.configPath, boot)
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg, cmd.Flags())
	a.cfg = cfg

	a.log, err = logging.New(cfg.General.LogLevel, cfg.General.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.programs = []*anchor.Program{greeter.New(), vault.New()}
	return nil
}

// program finds a hosted program by name or base58 identity.
func (a *app) program(ref string) (*anchor.Program, error) {
	for _, p := range a.programs {
		if p.Name() == ref || p.ID().String() == ref {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", runtime.ErrProgramNotFound, ref)
}

func (a *app) openStore() (*accounts.BadgerDB, error) {
	if err := os.MkdirAll(a.cfg.General.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return accounts.NewBadgerDB(a.cfg.General.DataDir, accounts.WithLogger(a.log.WithField("component", "badger")))
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) programsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List hosted programs",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, p := range a.programs {
				fmt.Fprintf(a.out, "%-10s %s  v%s  %d instructions\n", p.Name(), p.ID(), p.Version(), len(p.Instructions()))
			}
			return nil
		},
	}
}

func (a *app) idlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "idl PROGRAM",
		Short: "Print the interface description of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := a.program(args[0])
			if err != nil {
				return err
			}
			raw, err := p.IDL().JSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, string(raw))
			return err
		},
	}
}

func (a *app) deriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "derive PROGRAM SEED...",
		Short: "Find the canonical program address for seeds",
		Long:  "Seeds are given as str:TEXT, key:BASE58, hex:BYTES or u8:N.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			programID, err := a.programID(args[0])
			if err != nil {
				return err
			}
			seeds := make([][]byte, 0, len(args)-1)
			for _, s := range args[1:] {
				seed, err := parseSeed(s)
				if err != nil {
					return err
				}
				seeds = append(seeds, seed)
			}
			addr, bump, err := pda.FindProgramAddress(seeds, programID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d\n", addr, bump)
			return nil
		},
	}
}

// programID accepts a hosted program name or any base58 identity.
func (a *app) programID(ref string) (types.Pubkey, error) {
	if p, err := a.program(ref); err == nil {
		return p.ID(), nil
	}
	return types.PubkeyFromBase58(ref)
}

func (a *app) keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("refusing to overwrite %s", out)
			}
			key, err := generateKeypair()
			if err != nil {
				return err
			}
			if err := writeKeypair(out, key); err != nil {
				return err
			}
			fmt.Fprintln(a.out, publicKey(key))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "keypair.json", "Output file")
	return cmd
}

func (a *app) accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Inspect and edit the account store",
	}
	cmd.AddCommand(a.accountGetCmd(), a.accountSetCmd(), a.accountListCmd())
	return cmd
}

// accountView is the printed form of an account.
type accountView struct {
	Pubkey     types.Pubkey `json:"pubkey"`
	Lamports   uint64       `json:"lamports"`
	Owner      types.Pubkey `json:"owner"`
	Executable bool         `json:"executable"`
	RentEpoch  uint64       `json:"rent_epoch"`
	Data       string       `json:"data"`
}

func newAccountView(pk types.Pubkey, acc *types.Account) accountView {
	return accountView{
		Pubkey:     pk,
		Lamports:   uint64(acc.Lamports),
		Owner:      acc.Owner,
		Executable: acc.Executable,
		RentEpoch:  uint64(acc.RentEpoch),
		Data:       hex.EncodeToString(acc.Data),
	}
}

func (a *app) accountGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get PUBKEY",
		Short: "Print one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pk, err := types.PubkeyFromBase58(args[0])
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			acc, err := db.GetAccount(pk)
			if err != nil {
				return err
			}
			if acc == nil {
				return fmt.Errorf("account %s not found", pk)
			}
			return a.printJSON(newAccountView(pk, acc))
		},
	}
}

func (a *app) accountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every account",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			views := []accountView{}
			err = db.ForEach(func(pk types.Pubkey, acc *types.Account) error {
				views = append(views, newAccountView(pk, acc))
				return nil
			})
			if err != nil {
				return err
			}
			return a.printJSON(views)
		},
	}
}

func (a *app) accountSetCmd() *cobra.Command {
	var (
		lamports   uint64
		owner      string
		dataHex    string
		size       int
		executable bool
	)
	cmd := &cobra.Command{
		Use:   "set PUBKEY",
		Short: "Create or overwrite an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := types.PubkeyFromBase58(args[0])
			if err != nil {
				return err
			}
			ownerID, err := a.programID(owner)
			if err != nil {
				return fmt.Errorf("owner: %w", err)
			}
			var data []byte
			switch {
			case cmd.Flags().Changed("data") && cmd.Flags().Changed("size"):
				return fmt.Errorf("--data and --size are mutually exclusive")
			case cmd.Flags().Changed("data"):
				if data, err = hex.DecodeString(dataHex); err != nil {
					return fmt.Errorf("data: %w", err)
				}
			case size > 0:
				data = make([]byte, size)
			}

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			acc := types.NewAccountWithData(types.Lamports(lamports), data, ownerID)
			acc.Executable = executable
			if err := db.SetAccount(pk, acc); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{"pubkey": pk, "lamports": lamports, "owner": ownerID}).Info("Account stored")
			return nil
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&lamports, "lamports", 0, "Balance")
	f.StringVar(&owner, "owner", types.SystemProgramID.String(), "Owning program, by name or id")
	f.StringVar(&dataHex, "data", "", "Account data as hex")
	f.IntVar(&size, "size", 0, "Zero-filled data size")
	f.BoolVar(&executable, "executable", false, "Mark as a program account")
	return cmd
}

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the account store",
	}

	export := &cobra.Command{
		Use:   "export FILE",
		Short: "Write every account to a compressed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := snapshot.ExportFile(args[0], db)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"path":     args[0],
				"accounts": m.AccountsCount,
				"lamports": m.LamportsTotal,
			}).Info("Snapshot exported")
			fmt.Fprintln(a.out, m.AccountsHash)
			return nil
		},
	}

	var noVerify bool
	load := &cobra.Command{
		Use:   "import FILE",
		Short: "Load accounts from an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := snapshot.LoadFile(args[0], db, snapshot.LoadConfig{VerifyHashes: !noVerify})
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"path":     args[0],
				"accounts": res.AccountsLoaded,
				"verified": res.Verified,
			}).Info("Snapshot imported")
			fmt.Fprintln(a.out, res.AccountsHash)
			return nil
		},
	}
	load.Flags().BoolVar(&noVerify, "no-verify", false, "Skip the manifest hash check")

	cmd.AddCommand(export, load)
	return cmd
}

func (a *app) invokeCmd() *cobra.Command {
	var (
		metas    []string
		argsHex  string
		keypairs []string
		simulate bool
		stats    bool
	)
	cmd := &cobra.Command{
		Use:   "invoke PROGRAM INSTRUCTION",
		Short: "Execute one instruction against the account store",
		Long: "Accounts are given in schema order as PUBKEY[:FLAGS], where FLAGS holds\n" +
			"s for signer and w for writable. Arguments are the encoded argument\n" +
			"bytes in hex, without the discriminator.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.program(args[0])
			if err != nil {
				return err
			}
			ix, err := instructionByName(p, args[1])
			if err != nil {
				return err
			}
			argBytes, err := hex.DecodeString(argsHex)
			if err != nil {
				return fmt.Errorf("args: %w", err)
			}

			instruction := types.Instruction{
				ProgramID: p.ID(),
				Data:      append(append([]byte{}, ix.Discriminator[:]...), argBytes...),
			}
			for _, m := range metas {
				meta, err := parseAccountMeta(m)
				if err != nil {
					return err
				}
				instruction.Accounts = append(instruction.Accounts, meta)
			}
			tx := runtime.NewTransaction(instruction)

			if a.cfg.Runtime.Keypair != "" && !cmd.Flags().Changed("keypair") {
				keypairs = append(keypairs, a.cfg.Runtime.Keypair)
			}
			for _, path := range keypairs {
				key, err := loadKeypair(path)
				if err != nil {
					return err
				}
				if err := tx.Sign(key); err != nil {
					return err
				}
			}

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			opts := []runtime.Option{runtime.WithLogger(a.log)}
			if a.cfg.Runtime.SkipSigVerify {
				a.log.Warn("Signature verification disabled")
				opts = append(opts, runtime.SkipSignatureVerification())
			}
			var collector *metrics.Collector
			if stats {
				var mopts []metrics.Option
				if a.cfg.Metrics.Process {
					mopts = append(mopts, metrics.WithProcessMetrics())
				}
				collector = metrics.NewCollector(a.cfg.Metrics.Namespace, mopts...)
				opts = append(opts, runtime.WithMetrics(collector))
			}
			rt := runtime.New(db, runtime.NewProgramRegistry(p), opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			run := rt.Execute
			if simulate {
				run = rt.Simulate
			}
			res, err := run(ctx, tx)
			if err != nil {
				return err
			}

			a.printResult(res)
			if collector != nil {
				if err := collector.WriteText(a.out); err != nil {
					return err
				}
			}
			return res.Err
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&metas, "account", "a", nil, "Account as PUBKEY[:FLAGS], repeatable")
	f.StringVar(&argsHex, "args", "", "Encoded arguments as hex")
	f.StringArrayVarP(&keypairs, "keypair", "k", nil, "Signer keypair file, repeatable")
	f.Bool("skip-sig-verify", false, "Trust every claimed signer (unsafe)")
	f.BoolVar(&simulate, "simulate", false, "Run without committing")
	f.BoolVar(&stats, "stats", false, "Print metrics after the run")
	return cmd
}

func instructionByName(p *anchor.Program, name string) (*anchor.Instruction, error) {
	for _, ix := range p.Instructions() {
		if ix.Name == name {
			return ix, nil
		}
	}
	return nil, fmt.Errorf("program %s has no instruction %q", p.Name(), name)
}

func (a *app) printResult(res *runtime.Result) {
	for _, line := range res.Logs {
		fmt.Fprintln(a.out, line)
	}
	if len(res.ReturnData) > 0 {
		fmt.Fprintf(a.out, "Return data: %s\n", hex.EncodeToString(res.ReturnData))
	}
	if !res.Success {
		return
	}
	for _, d := range res.Deltas {
		fmt.Fprintf(a.out, "Changed %s: %d lamports, %d bytes\n", d.Pubkey, d.NewAccount.Lamports, len(d.NewAccount.Data))
	}
	fmt.Fprintf(a.out, "Delta hash: %s\n", res.DeltaHash)
}
