package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"blockdrive/go-sdk/internal/config"
	"blockdrive/go-sdk/internal/keyderive"
	"blockdrive/go-sdk/internal/keystore"
	"blockdrive/go-sdk/internal/ledger"
	"blockdrive/go-sdk/internal/platform/privacylog"
	"blockdrive/go-sdk/internal/retrieval"
	"blockdrive/go-sdk/internal/splitcrypt"
	"blockdrive/go-sdk/internal/storage"
	"blockdrive/go-sdk/internal/wallet"
	"blockdrive/go-sdk/internal/zkproof"
)

const (
	exitOK              = 0
	exitInvalidInput    = 10
	exitNetworkFailed   = 20
	exitAuthFailed      = 30
	exitIntegrityFailed = 40
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitInvalidInput)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "derive":
		runDerive(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "probe":
		runProbe(os.Args[2:])
	case "prepare":
		runPrepare(os.Args[2:])
	case "recover":
		runRecover(os.Args[2:])
	default:
		printUsage()
		os.Exit(exitInvalidInput)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	signer, mnemonic, err := wallet.Generate()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}
	defer signer.Wipe()
	if err := printJSON(map[string]any{
		"address":  signer.Address(),
		"mnemonic": mnemonic,
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runDerive(args []string) {
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	mnemonicFile := fs.String("mnemonic-file", "", "file holding the wallet mnemonic")
	passphrase := fs.String("passphrase", os.Getenv("BLOCKDRIVE_KEYSTORE_PASSPHRASE"), "keystore passphrase")
	keystorePath := fs.String("keystore", "", "keystore path override")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	mnemonic := strings.TrimSpace(os.Getenv("BLOCKDRIVE_MNEMONIC"))
	if *mnemonicFile != "" {
		raw, err := os.ReadFile(*mnemonicFile)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		mnemonic = strings.TrimSpace(string(raw))
	}
	if mnemonic == "" {
		writeStderrln("mnemonic is required (--mnemonic-file or BLOCKDRIVE_MNEMONIC)", exitInvalidInput)
	}
	if *passphrase == "" {
		writeStderrln("passphrase is required (--passphrase or BLOCKDRIVE_KEYSTORE_PASSPHRASE)", exitInvalidInput)
	}

	signer, err := wallet.FromMnemonic(mnemonic)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}
	defer signer.Wipe()

	cache := keystore.NewKeyCache()
	defer cache.Wipe()
	for _, level := range keyderive.Levels() {
		signature, err := signer.SignSecurityLevel(level)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		key, err := keyderive.Derive(signature, level)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		cache.Put(key)
	}

	cfg := config.LoadFromPath(*configPath)
	path := cfg.KeystorePath
	if *keystorePath != "" {
		path = *keystorePath
	}
	if err := cache.SaveFile(path, *passphrase); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}
	if err := printJSON(map[string]any{
		"address":  signer.Address(),
		"levels":   len(cache.Levels()),
		"keystore": path,
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	mnemonicFile := fs.String("mnemonic-file", "", "file holding the wallet mnemonic")
	level := fs.Int("level", 1, "security level 1-3")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	mnemonic := strings.TrimSpace(os.Getenv("BLOCKDRIVE_MNEMONIC"))
	if *mnemonicFile != "" {
		raw, err := os.ReadFile(*mnemonicFile)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		mnemonic = strings.TrimSpace(string(raw))
	}
	if mnemonic == "" {
		writeStderrln("mnemonic is required (--mnemonic-file or BLOCKDRIVE_MNEMONIC)", exitInvalidInput)
	}

	signer, err := wallet.FromMnemonic(mnemonic)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}
	defer signer.Wipe()

	secLevel := keyderive.SecurityLevel(*level)
	message, err := keyderive.SignMessage(secLevel)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	signature, err := signer.SignSecurityLevel(secLevel)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := printJSON(map[string]any{
		"address":   signer.Address(),
		"level":     *level,
		"message":   message,
		"signature": base64.StdEncoding.EncodeToString(signature),
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	owner := fs.String("owner", "", "file owner address (base58)")
	fileID := fs.String("file-id", "", "file identifier (uuid)")
	commitment := fs.String("commitment", "", "locally computed critical-bytes commitment (hex)")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if *owner == "" || *fileID == "" || *commitment == "" {
		writeStderrln("--owner, --file-id and --commitment are required", exitInvalidInput)
	}

	cfg := config.LoadFromPath(*configPath)
	program, err := ledger.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	ownerKey, err := ledger.ParsePublicKey(*owner)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	id, err := ledger.ParseFileID(*fileID)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	verifier := ledger.NewVerifier(ledger.NewRPCClient(cfg.RPCEndpoint, nil), program)
	result, verr := verifier.VerifyFileCommitment(context.Background(), ownerKey, id, *commitment)
	out := map[string]any{
		"verified":           result.Verified,
		"on_chain":           result.OnChain,
		"commitment_matches": result.CommitmentMatches,
		"owner_matches":      result.OwnerMatches,
	}
	if verr != nil {
		out["error"] = verr.Error()
	}
	if err := printJSON(out); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	switch {
	case verr == nil:
		os.Exit(exitOK)
	case result.OnChain:
		os.Exit(exitIntegrityFailed)
	default:
		os.Exit(exitNetworkFailed)
	}
}

func runProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	force := fs.Bool("force", false, "bypass the probe cache")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	cfg := config.LoadFromPath(*configPath)
	client := zkproof.NewArtifactClient(cfg.ArtifactBaseURL, nil, cfg.ArtifactProbeTTL)
	available, err := client.Available(context.Background(), *force)
	out := map[string]any{
		"available":     available,
		"artifact_base": cfg.ArtifactBaseURL,
	}
	if err != nil {
		out["error"] = err.Error()
	}
	if jerr := printJSON(out); jerr != nil {
		writeStderrln(jerr.Error(), exitNetworkFailed)
	}
	if available {
		os.Exit(exitOK)
	}
	os.Exit(exitNetworkFailed)
}

func runPrepare(args []string) {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	filePath := fs.String("file", "", "plaintext file to prepare")
	level := fs.Int("level", 1, "security level 1-3")
	cid := fs.String("cid", "", "primary content identifier, if already pinned")
	outDir := fs.String("out-dir", ".", "directory for the ciphertext and proof package")
	passphrase := fs.String("passphrase", os.Getenv("BLOCKDRIVE_KEYSTORE_PASSPHRASE"), "keystore passphrase")
	keystorePath := fs.String("keystore", "", "keystore path override")
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if *filePath == "" {
		writeStderrln("--file is required", exitInvalidInput)
	}

	cfg := config.LoadFromPath(*configPath)
	logger := newLogger(*verbose)
	cache := openKeystore(cfg, *keystorePath, *passphrase)
	defer cache.Wipe()

	key, err := cache.Get(keyderive.SecurityLevel(*level))
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	plaintext, err := os.ReadFile(*filePath)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	split, err := splitcrypt.EncryptSplit(plaintext, key.Key)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}

	ctx := context.Background()
	artifacts := zkproof.NewArtifactClient(cfg.ArtifactBaseURL, nil, cfg.ArtifactProbeTTL)
	svc := zkproof.NewService(zkproof.SelectBackend(ctx, artifacts, logger))
	pkg, err := svc.Generate(split.CriticalBytes, split.IV, key.Key, split.Commitment)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}

	fileID, err := ledger.NewFileID()
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	onChainLevel, err := ledger.SecurityLevelFromClient(*level)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	full := append(append([]byte(nil), split.CriticalBytes...), split.Ciphertext...)
	instruction, err := ledger.EncodeRegisterFile(ledger.RegisterFileArgs{
		FileID:                  fileID,
		FilenameHash:            sha256.Sum256([]byte(filepath.Base(*filePath))),
		FileSize:                uint64(len(plaintext)),
		EncryptedSize:           uint64(len(full)),
		MimeTypeHash:            sha256.Sum256([]byte(mimeForName(*filePath))),
		SecurityLevel:           onChainLevel,
		EncryptionCommitment:    sha256.Sum256(full),
		CriticalBytesCommitment: sha256.Sum256(split.CriticalBytes),
		PrimaryCID:              *cid,
	})
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
		return
	}

	name := ledger.FormatFileID(fileID)
	contentPath := filepath.Join(*outDir, name+".bin")
	proofPath := filepath.Join(*outDir, name+".proof.json")
	pkgJSON, err := json.Marshal(pkg)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := os.WriteFile(contentPath, split.Ciphertext, 0o600); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := os.WriteFile(proofPath, pkgJSON, 0o600); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := printJSON(map[string]any{
		"file_id":     name,
		"commitment":  split.Commitment,
		"proof_type":  pkg.ProofType,
		"content":     contentPath,
		"proof":       proofPath,
		"instruction": base64.StdEncoding.EncodeToString(instruction),
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func runRecover(args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	grantor := fs.String("grantor", "", "file owner address (base58)")
	grantee := fs.String("grantee", "", "delegation recipient address (base58)")
	fileID := fs.String("file-id", "", "file identifier (uuid)")
	outPath := fs.String("out", "", "output path for the recovered plaintext")
	expectedHash := fs.String("expected-hash", "", "sha256 hex of the expected plaintext")
	passphrase := fs.String("passphrase", os.Getenv("BLOCKDRIVE_KEYSTORE_PASSPHRASE"), "keystore passphrase")
	keystorePath := fs.String("keystore", "", "keystore path override")
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if *grantor == "" || *grantee == "" || *fileID == "" || *outPath == "" {
		writeStderrln("--grantor, --grantee, --file-id and --out are required", exitInvalidInput)
	}

	cfg := config.LoadFromPath(*configPath)
	logger := newLogger(*verbose)
	program, err := ledger.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	grantorKey, err := ledger.ParsePublicKey(*grantor)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	granteeKey, err := ledger.ParsePublicKey(*grantee)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	id, err := ledger.ParseFileID(*fileID)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	ctx := context.Background()
	verifier := ledger.NewVerifier(ledger.NewRPCClient(cfg.RPCEndpoint, nil), program)
	record, fileAddr, err := verifier.FetchFileRecord(ctx, grantorKey, id)
	if err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
		return
	}
	delegation, _, err := verifier.FetchDelegation(ctx, fileAddr, granteeKey)
	if err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
		return
	}

	cache := openKeystore(cfg, *keystorePath, *passphrase)
	defer cache.Wipe()
	key, err := cache.Get(keyderive.SecurityLevel(record.SecurityLevel.ClientLevel()))
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	store := storage.NewClient(
		storage.WithGateways(cfg.Gateways),
		storage.WithProofStore(cfg.ProofStoreURL),
		storage.WithLogger(logger),
	)
	artifacts := zkproof.NewArtifactClient(cfg.ArtifactBaseURL, nil, cfg.ArtifactProbeTTL)
	svc := zkproof.NewService(zkproof.SelectBackend(ctx, artifacts, logger))
	orch := retrieval.NewOrchestrator(svc, store, nil, logger)

	result, err := orch.Retrieve(ctx, &retrieval.Request{
		Delegation:    delegation,
		Record:        record,
		DecryptionKey: key.Key,
		ExpectedHash:  *expectedHash,
	})
	if err != nil {
		code := exitNetworkFailed
		if retrieval.IsIntegrityError(err) {
			code = exitIntegrityFailed
		}
		writeStderrln(err.Error(), code)
		return
	}
	if err := os.WriteFile(*outPath, result.Plaintext, 0o600); err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if err := printJSON(map[string]any{
		"bytes":          len(result.Plaintext),
		"hash_verified":  result.HashVerified,
		"proof_type":     result.ProofType,
		"content_source": result.ContentSource,
		"output":         *outPath,
	}); err != nil {
		writeStderrln(err.Error(), exitNetworkFailed)
	}
	os.Exit(exitOK)
}

func openKeystore(cfg config.Config, override, passphrase string) *keystore.KeyCache {
	if passphrase == "" {
		writeStderrln("passphrase is required (--passphrase or BLOCKDRIVE_KEYSTORE_PASSPHRASE)", exitInvalidInput)
	}
	path := cfg.KeystorePath
	if override != "" {
		path = override
	}
	cache, err := keystore.LoadFile(path, passphrase)
	if err != nil {
		writeStderrln(err.Error(), exitAuthFailed)
	}
	return cache
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(privacylog.WrapHandler(handler))
}

func mimeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	writeStdoutln("blockdrive <command> [flags]")
	writeStdoutln("commands:")
	writeStdoutln("  init     generate a wallet mnemonic and address")
	writeStdoutln("  derive   --mnemonic-file <path> [--passphrase pw] [--keystore path] [--config path]")
	writeStdoutln("  sign     --mnemonic-file <path> [--level 1-3]")
	writeStdoutln("  verify   --owner <base58> --file-id <uuid> --commitment <hex> [--config path]")
	writeStdoutln("  probe    [--force] [--config path]")
	writeStdoutln("  prepare  --file <path> [--level 1-3] [--cid cid] [--out-dir dir] [--keystore path] [--config path]")
	writeStdoutln("  recover  --grantor <base58> --grantee <base58> --file-id <uuid> --out <path> [--expected-hash hex] [--keystore path] [--config path]")
}

func writeStdoutln(line string) {
	if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
		os.Exit(exitInvalidInput)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
