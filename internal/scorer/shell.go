package scorer

import (
	"context"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellScorer parses prompts bound for code execution into a bash AST and
// runs structural checks that regex cannot express: flag normalization,
// pipe-target analysis, sudo transparency, device-path classification. It
// only engages for the execute_code capability; any other request is out of
// its jurisdiction and scores benign.
type ShellScorer struct{}

func NewShellScorer() *ShellScorer { return &ShellScorer{} }

func (s *ShellScorer) Name() string { return "shell" }

func (s *ShellScorer) Score(ctx context.Context, in Input) (ScoreResult, error) {
	if in.Capability != "execute_code" {
		return ScoreResult{Score: 0, Category: CategoryBenign}, nil
	}

	cmd := parseShell(in.Prompt)
	if cmd == nil {
		// Not parseable as shell. The heuristic scorer covers free text.
		return ScoreResult{Score: 0, Category: CategoryBenign}, nil
	}

	best := ScoreResult{Score: 0, Category: CategoryBenign}
	for _, check := range shellChecks {
		if score, cat := check(cmd); score > best.Score {
			best.Score = score
			best.Category = cat
		}
	}
	return best, nil
}

// shellCommand is the flattened view of a parsed command line.
type shellCommand struct {
	segments  []shellSegment
	operators []string // between consecutive segments: "|", "&&", "||", ";"
}

// shellSegment is one simple command within a pipeline or list.
type shellSegment struct {
	exe   string
	flags map[string]struct{}
	args  []string
}

func (seg shellSegment) hasFlag(names ...string) bool {
	for _, n := range names {
		if _, ok := seg.flags[n]; ok {
			return true
		}
	}
	return false
}

func parseShell(raw string) *shellCommand {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(raw), "")
	if err != nil {
		return nil
	}
	cmd := &shellCommand{}
	for _, stmt := range file.Stmts {
		walkStmt(cmd, stmt)
	}
	if len(cmd.segments) == 0 {
		return nil
	}
	return cmd
}

func walkStmt(cmd *shellCommand, stmt *syntax.Stmt) {
	if stmt.Cmd == nil {
		return
	}
	switch c := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if seg, ok := callToSegment(c); ok {
			cmd.segments = append(cmd.segments, seg)
		}
	case *syntax.BinaryCmd:
		walkStmt(cmd, c.X)
		cmd.operators = append(cmd.operators, binaryOp(c.Op))
		walkStmt(cmd, c.Y)
	case *syntax.Subshell:
		for _, inner := range c.Stmts {
			walkStmt(cmd, inner)
		}
	case *syntax.Block:
		for _, inner := range c.Stmts {
			walkStmt(cmd, inner)
		}
	}
}

func callToSegment(call *syntax.CallExpr) (shellSegment, bool) {
	printer := syntax.NewPrinter()
	words := make([]string, 0, len(call.Args))
	for _, w := range call.Args {
		var sb strings.Builder
		printer.Print(&sb, w)
		words = append(words, sb.String())
	}
	if len(words) == 0 {
		return shellSegment{}, false
	}

	seg := shellSegment{exe: words[0], flags: make(map[string]struct{})}
	rest := words[1:]

	// sudo is transparent: skip it and its own flags, the real command is
	// the first bare word after.
	if seg.exe == "sudo" {
		for len(rest) > 0 && strings.HasPrefix(rest[0], "-") {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return seg, true
		}
		seg.exe = rest[0]
		rest = rest[1:]
	}

	for _, w := range rest {
		switch {
		case strings.HasPrefix(w, "--") && len(w) > 2:
			name := w[2:]
			if eq := strings.Index(name, "="); eq >= 0 {
				name = name[:eq]
			}
			seg.flags[name] = struct{}{}
		case strings.HasPrefix(w, "-") && len(w) > 1:
			for _, ch := range w[1:] {
				seg.flags[string(ch)] = struct{}{}
			}
		default:
			seg.args = append(seg.args, w)
		}
	}
	return seg, true
}

func binaryOp(op syntax.BinCmdOperator) string {
	switch op {
	case syntax.Pipe:
		return "|"
	case syntax.AndStmt:
		return "&&"
	case syntax.OrStmt:
		return "||"
	default:
		return op.String()
	}
}

// ---------------------------------------------------------------------------
// Structural checks
// ---------------------------------------------------------------------------

type shellCheck func(cmd *shellCommand) (float64, Category)

var shellChecks = []shellCheck{
	checkRecursiveDelete,
	checkPipeToInterpreter,
	checkRawDeviceWrite,
	checkWorldWritableSystemPath,
	checkCredentialFileRead,
}

// checkRecursiveDelete flags rm with recursive+force aimed at the root or a
// system directory.
func checkRecursiveDelete(cmd *shellCommand) (float64, Category) {
	for _, seg := range cmd.segments {
		if seg.exe != "rm" {
			continue
		}
		recursive := seg.hasFlag("r", "R", "recursive")
		force := seg.hasFlag("f", "force")
		if !recursive || !force {
			continue
		}
		for _, arg := range seg.args {
			if isRootPath(arg) || isSystemDir(arg) {
				return 0.95, CategoryUnsafeInstruction
			}
		}
		// Recursive force delete anywhere is still worth surfacing.
		return 0.6, CategoryUnsafeInstruction
	}
	return 0, CategoryBenign
}

// checkPipeToInterpreter flags download output piped straight into a shell
// or scripting interpreter.
func checkPipeToInterpreter(cmd *shellCommand) (float64, Category) {
	for i := 0; i+1 < len(cmd.segments); i++ {
		if i >= len(cmd.operators) || cmd.operators[i] != "|" {
			continue
		}
		if isDownloader(cmd.segments[i].exe) && isInterpreter(cmd.segments[i+1].exe) {
			return 0.9, CategoryUnsafeInstruction
		}
	}
	return 0, CategoryBenign
}

// checkRawDeviceWrite flags dd and mkfs aimed at block devices. dd into a
// regular file is an ordinary way to make a disk image and stays quiet.
func checkRawDeviceWrite(cmd *shellCommand) (float64, Category) {
	for _, seg := range cmd.segments {
		switch {
		case seg.exe == "dd":
			for _, arg := range seg.args {
				if strings.HasPrefix(arg, "of=") && isBlockDevice(arg[3:]) {
					return 0.9, CategoryUnsafeInstruction
				}
			}
		case strings.HasPrefix(seg.exe, "mkfs"):
			for _, arg := range seg.args {
				if isBlockDevice(arg) {
					return 0.9, CategoryUnsafeInstruction
				}
			}
		}
	}
	return 0, CategoryBenign
}

// checkWorldWritableSystemPath flags chmod modes equivalent to 777 applied
// to system paths.
func checkWorldWritableSystemPath(cmd *shellCommand) (float64, Category) {
	for _, seg := range cmd.segments {
		if seg.exe != "chmod" {
			continue
		}
		for i, arg := range seg.args {
			if !isWorldWritableMode(arg) {
				continue
			}
			for _, target := range seg.args[i+1:] {
				if isSystemPath(target) {
					return 0.85, CategoryUnsafeInstruction
				}
			}
		}
	}
	return 0, CategoryBenign
}

// checkCredentialFileRead flags reads of well-known credential stores.
func checkCredentialFileRead(cmd *shellCommand) (float64, Category) {
	readers := map[string]bool{"cat": true, "less": true, "more": true, "head": true, "tail": true, "cp": true, "scp": true, "base64": true}
	for _, seg := range cmd.segments {
		if !readers[seg.exe] {
			continue
		}
		for _, arg := range seg.args {
			if isCredentialPath(arg) {
				return 0.8, CategorySecretLeak
			}
		}
	}
	return 0, CategoryBenign
}

// ---------------------------------------------------------------------------
// Path classification
// ---------------------------------------------------------------------------

func isRootPath(path string) bool {
	cleaned := strings.TrimRight(path, "/")
	return cleaned == "" || path == "/*"
}

var systemDirs = map[string]bool{
	"/etc": true, "/usr": true, "/usr/local": true, "/var": true,
	"/boot": true, "/sys": true, "/proc": true, "/lib": true,
	"/lib64": true, "/sbin": true, "/bin": true, "/opt": true,
}

func isSystemDir(path string) bool {
	return systemDirs[strings.TrimRight(path, "/")]
}

func isSystemPath(path string) bool {
	if path == "/" || path == "/*" || isSystemDir(path) {
		return true
	}
	for dir := range systemDirs {
		if strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

func isBlockDevice(path string) bool {
	for _, prefix := range []string{"/dev/sd", "/dev/hd", "/dev/nvme", "/dev/vd", "/dev/xvd", "/dev/md", "/dev/dm-", "/dev/loop"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isCredentialPath(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range []string{"/etc/shadow", "/etc/passwd", ".ssh/", "id_rsa", "id_ed25519", ".aws/credentials", ".netrc", ".npmrc", ".pgpass", ".env"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isWorldWritableMode(mode string) bool {
	m := strings.ToLower(mode)
	if m == "777" || m == "0777" {
		return true
	}
	if strings.Contains(m, "w") {
		if strings.Contains(m, "a+") || strings.Contains(m, "o+") || strings.HasPrefix(m, "+") {
			return true
		}
	}
	return false
}

var downloaders = map[string]bool{
	"curl": true, "wget": true, "fetch": true, "aria2c": true,
}

func isDownloader(exe string) bool { return downloaders[exe] }

var interpreterNames = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
	"python": true, "python3": true, "python2": true,
	"node": true, "ruby": true, "perl": true, "lua": true, "php": true,
}

func isInterpreter(exe string) bool { return interpreterNames[exe] }
