package main

import "fmt"

func completionMain(args []string) {
	shell := "bash"
	if len(args) > 0 && args[0] != "" {
		shell = args[0]
	}
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	default:
		log.Fatalf("unsupported shell: %s (use bash or zsh)", shell)
	}
}

const bashCompletion = `
_gpt_relay_completions()
{
    local cur
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "serve gateway preview check models history features completion version help -config -c -enable -disable" -- "$cur") )
        return 0
    fi

    case "${COMP_WORDS[1]}" in
        serve)
            COMPREPLY=( $(compgen -W "-gateway -addr -c" -- "$cur") )
            ;;
        gateway)
            COMPREPLY=( $(compgen -W "-addr -c" -- "$cur") )
            ;;
        preview)
            COMPREPLY=( $(compgen -W "-prompt -model -max-tokens -page-size -keep-open -alt-screen -c" -- "$cur") )
            ;;
        check)
            COMPREPLY=( $(compgen -W "-ask -save -engines -timeout -skip-discord -c" -- "$cur") )
            ;;
        history)
            COMPREPLY=( $(compgen -W "show -n -dir -json" -- "$cur") )
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            ;;
    esac
}
complete -F _gpt_relay_completions gpt-relay
`

const zshCompletion = `
#compdef gpt-relay

_gpt_relay() {
  local -a commands
  commands=(
    'serve:run the Discord bot'
    'gateway:serve only the HTTP gateway'
    'preview:relay one prompt into the terminal'
    'check:verify credentials'
    'models:list the engines offered by /chat'
    'history:list archived relays'
    'features:list feature flags'
    'completion:print a completion script'
    'version:print the version'
  )
  if (( CURRENT == 2 )); then
    _describe 'command' commands
    return
  fi
  case $words[2] in
    completion)
      _values 'shell' bash zsh
      ;;
    history)
      _values 'action' show
      ;;
  esac
}

compdef _gpt_relay gpt-relay
`
