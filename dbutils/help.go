package dbutils

import (
	"fmt"
	"strings"
)

type helpGroup struct {
	summary string
	methods [][2]string
}

var helpGroupOrder = []string{"credentials", "data", "fs", "jobs", "jobs.taskValues", "library", "notebook", "secrets", "widgets"}

var helpGroups = map[string]*helpGroup{
	"credentials": {
		summary: "Utilities for interacting with credentials within notebooks",
		methods: [][2]string{
			{"assumeRole", "assumeRole(role) -> error: sets the role ARN to assume when looking for credentials to authenticate with S3"},
			{"showCurrentRole", "showCurrentRole() -> []string: shows the currently set role"},
			{"showRoles", "showRoles() -> []string: shows the set of possible assumed roles"},
			{"getCurrentCredentials", "getCurrentCredentials() -> map: returns temporary credentials for the current role"},
		},
	},
	"data": {
		summary: "Utilities for understanding and interacting with datasets",
		methods: [][2]string{
			{"summarize", "summarize(table, precise) -> Summary: summarizes a table, precise computes exact distinct counts"},
		},
	},
	"fs": {
		summary: "Manipulates the workspace filesystem (DBFS) from the console",
		methods: [][2]string{
			{"cp", "cp(from, to, recurse) -> error: copies a file or directory, possibly across filesystems"},
			{"head", "head(file, maxBytes) -> string: returns up to the first maxBytes bytes of the given file as a UTF-8 string"},
			{"ls", "ls(dir) -> []FileEntry: lists the contents of a directory"},
			{"mkdirs", "mkdirs(dir) -> error: creates the given directory if it does not exist, also creating any necessary parent directories"},
			{"mv", "mv(from, to, recurse) -> error: moves a file or directory, possibly across filesystems"},
			{"put", "put(file, contents, overwrite) -> error: writes the given string out to a file, encoded in UTF-8"},
			{"rm", "rm(dir, recurse) -> error: removes a file or directory"},
			{"mount", "mount(source, mountPoint, encryptionType, owner, extraConfigs) -> error: mounts the given source directory into DBFS at the given mount point"},
			{"mounts", "mounts() -> []MountDescriptor: displays information about what is mounted within DBFS"},
			{"refreshMounts", "refreshMounts() -> error: forces all machines in this workspace to refresh their mount cache"},
			{"unmount", "unmount(mountPoint) -> error: deletes a DBFS mount point"},
		},
	},
	"jobs": {
		summary: "Utilities for leveraging jobs features",
		methods: [][2]string{
			{"taskValues", "taskValues: provides utilities for leveraging job task values"},
		},
	},
	"jobs.taskValues": {
		summary: "Provides utilities for leveraging job task values",
		methods: [][2]string{
			{"get", "get(taskKey, key, default, debugValue) -> any: returns the latest task value that belongs to the current job run"},
			{"set", "set(key, value) -> error: sets a task value on the current task run"},
		},
	},
	"library": {
		summary: "Utilities for session isolated libraries",
		methods: [][2]string{
			{"install", "install(path) -> error: installs a library file within the session"},
			{"installPyPI", "installPyPI(project, version, repo, extras) -> error: installs a PyPI library within the session"},
			{"list", "list() -> []Library: lists the isolated libraries added for the session"},
			{"restartPython", "restartPython() -> error: restarts the session, dropping its libraries and role"},
		},
	},
	"notebook": {
		summary: "Utilities for the control flow of a notebook",
		methods: [][2]string{
			{"exit", "exit(value) -> error: exits the notebook with a value"},
			{"run", "run(path, timeoutSeconds, arguments) -> string: runs a notebook and returns its exit value"},
		},
	},
	"secrets": {
		summary: "Provides utilities for leveraging secrets within notebooks",
		methods: [][2]string{
			{"get", "get(scope, key) -> string: gets the string representation of a secret value with scope and key"},
			{"getBytes", "getBytes(scope, key) -> []byte: gets the bytes representation of a secret value with scope and key"},
			{"list", "list(scope) -> []SecretMetadata: lists secret metadata for secrets within a scope"},
			{"listScopes", "listScopes() -> []SecretScope: lists secret scopes"},
		},
	},
	"widgets": {
		summary: "Methods to create and get bound value of input widgets inside notebooks",
		methods: [][2]string{
			{"combobox", "combobox(name, defaultValue, choices, label) -> error: creates a combobox input widget with a given name, default value and choices"},
			{"dropdown", "dropdown(name, defaultValue, choices, label) -> error: creates a dropdown input widget with a given name, default value and choices"},
			{"get", "get(name) -> string: retrieves current value of an input widget"},
			{"getArgument", "getArgument(name, defaultValue) -> string: retrieves current value of an input widget, or defaultValue when it is undefined"},
			{"multiselect", "multiselect(name, defaultValue, choices, label) -> error: creates a multiselect input widget with a given name, default value and choices"},
			{"remove", "remove(name) -> error: removes an input widget from the notebook"},
			{"removeAll", "removeAll() -> error: removes all widgets in the notebook"},
			{"text", "text(name, defaultValue, label) -> error: creates a text input widget with a given name and default value"},
		},
	},
}

func noHelp(method string) string {
	return fmt.Sprintf("No help available for method %q.", method)
}

func rootHelp(method string) string {
	if method == "" {
		var sb strings.Builder
		sb.WriteString("This module provides various utilities for users to interact with the rest of the workspace.\n\n")
		for _, name := range helpGroupOrder {
			fmt.Fprintf(&sb, "%s: %s\n", name, helpGroups[name].summary)
		}
		return sb.String()
	}

	if _, ok := helpGroups[method]; ok {
		return groupHelp(method, "")
	}
	idx := strings.LastIndex(method, ".")
	if idx > 0 {
		if g, ok := helpGroups[method[:idx]]; ok {
			name := method[idx+1:]
			for _, m := range g.methods {
				if m[0] == name {
					return m[1]
				}
			}
		}
	}
	return noHelp(method)
}

func groupHelp(group, method string) string {
	g, ok := helpGroups[group]
	if !ok {
		return noHelp(method)
	}

	if method == "" {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %s\n\n", group, g.summary)
		for _, m := range g.methods {
			fmt.Fprintf(&sb, "%s\n", m[1])
		}
		return sb.String()
	}

	for _, m := range g.methods {
		if m[0] == method {
			return m[1]
		}
	}
	return noHelp(method)
}
