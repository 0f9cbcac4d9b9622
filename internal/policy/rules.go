package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRestrictedCommands are the commands restricted scripts can't use.
var DefaultRestrictedCommands = []string{
	"Remove-Item", "Remove-Computer", "Remove-ADUser",
	"Format-Volume", "Clear-Disk", "Initialize-Disk",
	"Remove-VM", "Remove-VMHost", "Remove-Datacenter",
	"Invoke-Expression", "Invoke-Command",
	"Start-Process", "New-Service", "Stop-Service",
	"Disable-WindowsOptionalFeature", "Uninstall-WindowsFeature",
	"Set-ExecutionPolicy", "Remove-Module",
}

// DefaultRestrictedModules are the modules restricted scripts can't import.
var DefaultRestrictedModules = []string{
	"PowerSploit", "Nishang", "Invoke-Obfuscation", "PowerUpSQL", "DSInternals", "Posh-SecMod",
}

// DefaultDangerousPatterns are dangerous constructs in restricted scripts.
var DefaultDangerousPatterns = []string{
	`rm\s+-rf`,
	`del\s+/[fs]`,
	`\|\s*Out-File\s+.*>`,
	`Invoke-WebRequest.*\|.*Invoke-Expression`,
	`iex\s*\(`,
	`&\s*\(`,
}

const (
	// DefaultEncodedPayloadMinLength is the minimum length of a base64 token to be considered a payload.
	DefaultEncodedPayloadMinLength = 40
	// DefaultObfuscationChar is the PowerShell escape and line continuation character.
	DefaultObfuscationChar = '`'
	// DefaultObfuscationThreshold is the maximum number of escape characters allowed.
	DefaultObfuscationThreshold = 20
)

// tokenChars are the characters that can be part of a command name.
const tokenChars = `A-Za-z0-9_-`

// CommandDenylistRule flags restricted commands used as whole tokens.
type CommandDenylistRule struct {
	commands []string
	regexps  []*regexp.Regexp
}

// NewCommandDenylistRule returns a new command denylist rule, matching is case insensitive.
func NewCommandDenylistRule(commands []string) *CommandDenylistRule {
	r := &CommandDenylistRule{}
	for _, c := range commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		r.commands = append(r.commands, c)
		r.regexps = append(r.regexps, regexp.MustCompile(`(?i)(?:^|[^`+tokenChars+`])`+regexp.QuoteMeta(c)+`(?:$|[^`+tokenChars+`])`))
	}
	return r
}

func (r *CommandDenylistRule) Name() string { return "command-denylist" }

func (r *CommandDenylistRule) Check(script string) []string {
	var issues []string
	for i, re := range r.regexps {
		if re.MatchString(script) {
			issues = append(issues, fmt.Sprintf("restricted command detected: %s", r.commands[i]))
		}
	}
	return issues
}

var importDirectiveRegexps = []*regexp.Regexp{
	// Import-Module X, Import-Module -Name X, ipmo X.
	regexp.MustCompile(`(?im)(?:^|[;|{(\s])(?:Import-Module|ipmo)\s+(?:-Name\s+)?['"]?([A-Za-z0-9_.\-\\/:]+)`),
	// using module X.
	regexp.MustCompile(`(?im)^\s*using\s+module\s+['"]?([A-Za-z0-9_.\-\\/:]+)`),
	// #Requires -Modules X, Y.
	regexp.MustCompile(`(?im)^\s*#requires\s+-modules?\s+([^\r\n]+)`),
}

// ModuleDenylistRule flags import directives referencing restricted modules.
type ModuleDenylistRule struct {
	modules map[string]string
}

// NewModuleDenylistRule returns a new module denylist rule, matching is case insensitive.
func NewModuleDenylistRule(modules []string) *ModuleDenylistRule {
	r := &ModuleDenylistRule{modules: map[string]string{}}
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if m != "" {
			r.modules[strings.ToLower(m)] = m
		}
	}
	return r
}

func (r *ModuleDenylistRule) Name() string { return "module-denylist" }

func (r *ModuleDenylistRule) Check(script string) []string {
	found := map[string]bool{}
	var issues []string
	for _, re := range importDirectiveRegexps {
		for _, match := range re.FindAllStringSubmatch(script, -1) {
			for _, name := range splitModuleNames(match[1]) {
				m, ok := r.modules[strings.ToLower(name)]
				if !ok || found[m] {
					continue
				}
				found[m] = true
				issues = append(issues, fmt.Sprintf("restricted module import detected: %s", m))
			}
		}
	}
	return issues
}

// splitModuleNames normalizes a module reference (paths, extensions and
// #Requires lists) into bare module names.
func splitModuleNames(ref string) []string {
	var names []string
	for _, part := range strings.Split(ref, ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"@{}`)
		if part == "" {
			continue
		}
		if i := strings.LastIndexAny(part, `\/`); i >= 0 {
			part = part[i+1:]
		}
		for _, ext := range []string{".psd1", ".psm1", ".dll"} {
			if strings.HasSuffix(strings.ToLower(part), ext) {
				part = part[:len(part)-len(ext)]
			}
		}
		names = append(names, part)
	}
	return names
}

// EncodedPayloadRule flags long base64 tokens passed to encoded command flags.
type EncodedPayloadRule struct {
	minLength int
	regexps   []*regexp.Regexp
}

// NewEncodedPayloadRule returns a new encoded payload rule. Zero or negative
// minLength uses DefaultEncodedPayloadMinLength.
func NewEncodedPayloadRule(minLength int) *EncodedPayloadRule {
	if minLength <= 0 {
		minLength = DefaultEncodedPayloadMinLength
	}
	token := fmt.Sprintf(`([A-Za-z0-9+/]{%d,}={0,2})`, minLength)
	return &EncodedPayloadRule{
		minLength: minLength,
		regexps: []*regexp.Regexp{
			// PowerShell accepts any unambiguous prefix of -EncodedCommand.
			regexp.MustCompile(`(?i)(?:^|\s)[-/](?:e|ec|en|enc|enco|encod|encode|encoded|encodedc|encodedco|encodedcom|encodedcomm|encodedcomma|encodedcomman|encodedcommand)\s+['"]?` + token),
			regexp.MustCompile(`(?i)FromBase64String\s*\(\s*['"]` + token),
		},
	}
}

func (r *EncodedPayloadRule) Name() string { return "encoded-payload" }

func (r *EncodedPayloadRule) Check(script string) []string {
	count := 0
	for _, re := range r.regexps {
		count += len(re.FindAllStringIndex(script, -1))
	}
	if count == 0 {
		return nil
	}
	return []string{fmt.Sprintf("encoded payload detected: %d base64 token(s) of %d+ characters after an encoded command flag", count, r.minLength)}
}

// ObfuscationRule flags scripts abusing the escape character.
type ObfuscationRule struct {
	char      rune
	threshold int
}

// NewObfuscationRule returns a new obfuscation rule. Zero values use the defaults.
func NewObfuscationRule(char rune, threshold int) *ObfuscationRule {
	if char == 0 {
		char = DefaultObfuscationChar
	}
	if threshold <= 0 {
		threshold = DefaultObfuscationThreshold
	}
	return &ObfuscationRule{char: char, threshold: threshold}
}

func (r *ObfuscationRule) Name() string { return "obfuscation" }

func (r *ObfuscationRule) Check(script string) []string {
	n := strings.Count(script, string(r.char))
	if n <= r.threshold {
		return nil
	}
	return []string{fmt.Sprintf("possible obfuscation detected: %d %q characters (max %d)", n, r.char, r.threshold)}
}

// DangerousPatternRule flags scripts matching dangerous regular expressions.
type DangerousPatternRule struct {
	patterns []string
	regexps  []*regexp.Regexp
}

// NewDangerousPatternRule returns a new dangerous pattern rule, matching is case insensitive.
func NewDangerousPatternRule(patterns []string) (*DangerousPatternRule, error) {
	r := &DangerousPatternRule{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, p)
		r.regexps = append(r.regexps, re)
	}
	return r, nil
}

func (r *DangerousPatternRule) Name() string { return "dangerous-pattern" }

func (r *DangerousPatternRule) Check(script string) []string {
	var issues []string
	for i, re := range r.regexps {
		if re.MatchString(script) {
			issues = append(issues, fmt.Sprintf("dangerous pattern detected: %s", r.patterns[i]))
		}
	}
	return issues
}
