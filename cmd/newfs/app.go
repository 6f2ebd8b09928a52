package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-newfs/common"
	"github.com/mit-pdos/go-newfs/config"
	"github.com/mit-pdos/go-newfs/fs"
	"github.com/mit-pdos/go-newfs/logging"
)

func newApp(out io.Writer, in io.Reader) *cli.App {
	pathArg := func(ctx *cli.Context, i int) (string, error) {
		p := ctx.Args().Get(i)
		if p == "" {
			return "", fmt.Errorf("%s: missing path argument", ctx.Command.Name)
		}
		return p, nil
	}

	return &cli.App{
		Name:        "newfs",
		Usage:       "inspect and modify a newfs volume",
		Description: "mounts the configured device, runs one command and unmounts it",
		Writer:      out,
		Reader:      in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "yaml config file; NEWFS_* env vars take precedence",
				EnvVars: []string{"NEWFS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "device to mount (mem:NAME, blk:PATH or a file path)",
			},
		},
		Commands: []*cli.Command{{
			Name:    "statfs",
			Aliases: []string{"info", "df"},
			Usage:   "print volume geometry and free counts",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				st, err := f.Statfs()
				if err != nil {
					return err
				}
				sb := f.Super()
				data, err := json.MarshalIndent(struct {
					ID  string
					Dev string
					fs.Statfs
				}{f.ID().String(), sb.String(), st}, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling statfs to JSON: %w", err)
				}
				_, err = fmt.Fprintf(ctx.App.Writer, "%s\n", data)
				return err
			}),
		}, {
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[PATH]",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p := ctx.Args().First()
				if p == "" {
					p = "/"
				}
				ents, err := f.ReadDir(p)
				if err != nil {
					return err
				}
				for _, e := range ents {
					st, err := f.Stat(joinPath(p, e.Name))
					if err != nil {
						return err
					}
					name := e.Name
					if e.Type == common.NF_DIR {
						name += "/"
					}
					fmt.Fprintf(ctx.App.Writer, "%4d %s %6d %s\n", e.Ino, e.Type, st.Size, name)
				}
				return nil
			}),
		}, {
			Name:      "stat",
			Usage:     "print the attributes of a path",
			ArgsUsage: "PATH",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				st, err := f.Stat(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(ctx.App.Writer, "ino=%d type=%s size=%d nlink=%d perm=%o\n",
					st.Ino, st.Type, st.Size, st.Nlink, st.Perm)
				return nil
			}),
		}, {
			Name:      "mkdir",
			Usage:     "create a directory",
			ArgsUsage: "PATH",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				return f.Mkdir(p)
			}),
		}, {
			Name:      "touch",
			Aliases:   []string{"mknod"},
			Usage:     "create an empty regular file",
			ArgsUsage: "PATH",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				return f.Mknod(p)
			}),
		}, {
			Name:      "write",
			Usage:     "write stdin (or --data) into a file, creating it if needed",
			ArgsUsage: "PATH",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "data", Usage: "write this string instead of stdin"},
				&cli.Uint64Flag{Name: "offset", Usage: "byte offset to write at"},
			},
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				var data []byte
				if ctx.IsSet("data") {
					data = []byte(ctx.String("data"))
				} else {
					data, err = io.ReadAll(ctx.App.Reader)
					if err != nil {
						return fmt.Errorf("reading stdin: %w", err)
					}
				}
				if err := f.Mknod(p); err != nil && !errors.Is(err, common.ErrExists) {
					return err
				}
				n, err := f.WriteFile(p, ctx.Uint64("offset"), data)
				if err != nil {
					return err
				}
				logging.GetLoggerFromContextWithOp(ctx.Context, "write").
					Debug("wrote file", slog.String("path", p), slog.Int("n", n))
				return nil
			}),
		}, {
			Name:      "cat",
			Usage:     "print the contents of a file",
			ArgsUsage: "PATH",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "offset", Usage: "byte offset to read from"},
				&cli.Uint64Flag{Name: "length", Usage: "bytes to read", Value: common.BlockSize},
			},
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				data, err := f.ReadFile(p, ctx.Uint64("offset"), ctx.Uint64("length"))
				if err != nil {
					return err
				}
				_, err = ctx.App.Writer.Write(data)
				return err
			}),
		}, {
			Name:      "truncate",
			Usage:     "set the size of a file",
			ArgsUsage: "PATH",
			Flags: []cli.Flag{
				&cli.Uint64Flag{Name: "size", Aliases: []string{"s"}, Required: true},
			},
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				return f.Truncate(p, ctx.Uint64("size"))
			}),
		}, {
			Name:      "rm",
			Aliases:   []string{"unlink"},
			Usage:     "remove a file",
			ArgsUsage: "PATH",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				return f.Unlink(p)
			}),
		}, {
			Name:      "rmdir",
			Usage:     "remove an empty directory",
			ArgsUsage: "PATH",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				p, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				return f.Rmdir(p)
			}),
		}, {
			Name:      "mv",
			Aliases:   []string{"rename"},
			Usage:     "rename a file or directory",
			ArgsUsage: "FROM TO",
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				from, err := pathArg(ctx, 0)
				if err != nil {
					return err
				}
				to, err := pathArg(ctx, 1)
				if err != nil {
					return err
				}
				return f.Rename(from, to)
			}),
		}, {
			Name:  "dump-bitmap",
			Usage: "print the inode and data allocation bitmaps",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "inode", Usage: "only the inode bitmap"},
				&cli.BoolFlag{Name: "data", Usage: "only the data bitmap"},
			},
			Action: withFS(func(f *fs.FS, ctx *cli.Context) error {
				both := !ctx.Bool("inode") && !ctx.Bool("data")
				if both || ctx.Bool("inode") {
					if err := f.DumpBitmap(ctx.App.Writer, fs.InodeBitmap); err != nil {
						return err
					}
				}
				if both || ctx.Bool("data") {
					return f.DumpBitmap(ctx.App.Writer, fs.DataBitmap)
				}
				return nil
			}),
		}},
	}
}

// withFS loads the config, mounts the device for the duration of one
// command and unmounts it afterwards, even if the command failed.
func withFS(f func(*fs.FS, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) (err error) {
		if dev := ctx.String("device"); dev != "" {
			if err := os.Setenv("NEWFS_DEVICE", dev); err != nil {
				return err
			}
		}
		cfg, err := config.Load(ctx.String("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		log, err := logging.New(ctx.App.ErrWriter, cfg.Log.Format, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("configuring logger: %w", err)
		}
		ctx.Context = logging.MakeContextWithLogger(ctx.Context, log)

		filesys, err := fs.MountDevice(cfg.Device.Path, cfg.Device.Params(), log)
		if err != nil {
			return fmt.Errorf("mounting %s: %w", cfg.Device.Path, err)
		}
		defer func() {
			if uerr := filesys.Unmount(); uerr != nil {
				err = errors.Join(err, fmt.Errorf("unmounting %s: %w", cfg.Device.Path, uerr))
			}
		}()
		return f(filesys, ctx)
	}
}

func joinPath(dir, name string) string {
	if dir == "" || dir[len(dir)-1] != '/' {
		dir += "/"
	}
	return dir + name
}
